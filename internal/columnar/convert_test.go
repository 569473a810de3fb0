package columnar

import (
	"math"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/decimal128"
	"github.com/apache/arrow-go/v18/arrow/float16"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func newAllocator(t *testing.T) *memory.CheckedAllocator {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	return mem
}

func TestConvertNullPrecedesTypeDispatch(t *testing.T) {
	mem := newAllocator(t)
	builders := []array.Builder{
		array.NewBooleanBuilder(mem),
		array.NewInt32Builder(mem),
		array.NewFloat64Builder(mem),
		array.NewStringBuilder(mem),
		array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary),
		array.NewDate32Builder(mem),
		array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Second, TimeZone: "UTC"}),
		array.NewListBuilder(mem, arrow.PrimitiveTypes.Int64),
		array.NewStructBuilder(mem, arrow.StructOf(arrow.Field{Name: "a", Type: arrow.PrimitiveTypes.Int32, Nullable: true})),
		array.NewDurationBuilder(mem, &arrow.DurationType{Unit: arrow.Second}),
	}
	for _, builder := range builders {
		builder.AppendNull()
		arr := builder.NewArray()
		got := Convert(arr, 0)
		if !got.IsNull() {
			t.Fatalf("Convert(null %s) = %v kind %s", arr.DataType(), got.Interface(), got.Kind())
		}
		arr.Release()
		builder.Release()
	}

	nulls := array.NewNull(2)
	defer nulls.Release()
	for row := 0; row < nulls.Len(); row++ {
		if got := Convert(nulls, row); !got.IsNull() {
			t.Fatalf("Convert(null array, %d) = %v kind %s", row, got.Interface(), got.Kind())
		}
	}
}

func TestConvertIntegersAreExact(t *testing.T) {
	mem := newAllocator(t)

	i64 := array.NewInt64Builder(mem)
	defer i64.Release()
	i64.AppendValues([]int64{math.MinInt64, -1, math.MaxInt64}, nil)
	i64Arr := i64.NewArray()
	defer i64Arr.Release()

	u64 := array.NewUint64Builder(mem)
	defer u64.Release()
	u64.Append(math.MaxUint64)
	u64Arr := u64.NewArray()
	defer u64Arr.Release()

	i8 := array.NewInt8Builder(mem)
	defer i8.Release()
	i8.Append(-128)
	i8Arr := i8.NewArray()
	defer i8Arr.Release()

	cases := []struct {
		arr  arrow.Array
		row  int
		want string
	}{
		{i64Arr, 0, "-9223372036854775808"},
		{i64Arr, 1, "-1"},
		{i64Arr, 2, "9223372036854775807"},
		{u64Arr, 0, "18446744073709551615"},
		{i8Arr, 0, "-128"},
	}
	for _, tc := range cases {
		got := Convert(tc.arr, tc.row)
		if got.Kind() != KindNumber || got.Number() != tc.want {
			t.Fatalf("Convert(%s, %d) = %q (%s), want %q", tc.arr.DataType(), tc.row, got.Number(), got.Kind(), tc.want)
		}
	}
}

func TestConvertBoolean(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewBooleanBuilder(mem)
	defer b.Release()
	b.AppendValues([]bool{true, false}, nil)
	arr := b.NewArray()
	defer arr.Release()

	if got := Convert(arr, 0); got.Kind() != KindBool || !got.Bool() {
		t.Fatalf("Convert(true) = %+v", got.Interface())
	}
	if got := Convert(arr, 1); got.Kind() != KindBool || got.Bool() {
		t.Fatalf("Convert(false) = %+v", got.Interface())
	}
}

func TestConvertNonFiniteFloatsBecomeNull(t *testing.T) {
	mem := newAllocator(t)
	f64 := array.NewFloat64Builder(mem)
	defer f64.Release()
	f64.AppendValues([]float64{math.NaN(), math.Inf(1), math.Inf(-1), 2.5}, nil)
	arr := f64.NewArray()
	defer arr.Release()

	for row := 0; row < 3; row++ {
		if got := Convert(arr, row); !got.IsNull() {
			t.Fatalf("Convert(row %d) = %v, want null", row, got.Interface())
		}
	}
	got, err := Convert(arr, 3).Float64()
	if err != nil || got != 2.5 {
		t.Fatalf("Convert(2.5) = %v, %v", got, err)
	}

	f32 := array.NewFloat32Builder(mem)
	defer f32.Release()
	f32.Append(float32(math.NaN()))
	f32Arr := f32.NewArray()
	defer f32Arr.Release()
	if got := Convert(f32Arr, 0); !got.IsNull() {
		t.Fatalf("Convert(float32 NaN) = %v", got.Interface())
	}

	f16 := array.NewFloat16Builder(mem)
	defer f16.Release()
	f16.Append(float16.New(1.5))
	f16Arr := f16.NewArray()
	defer f16Arr.Release()
	if got, err := Convert(f16Arr, 0).Float64(); err != nil || got != 1.5 {
		t.Fatalf("Convert(float16 1.5) = %v, %v", got, err)
	}
}

func TestConvertStrings(t *testing.T) {
	mem := newAllocator(t)
	s := array.NewStringBuilder(mem)
	defer s.Release()
	s.Append("héllo")
	arr := s.NewArray()
	defer arr.Release()

	ls := array.NewLargeStringBuilder(mem)
	defer ls.Release()
	ls.Append("large")
	larr := ls.NewArray()
	defer larr.Release()

	if got := Convert(arr, 0); got.Kind() != KindText || got.Text() != "héllo" {
		t.Fatalf("Convert(utf8) = %q", got.Text())
	}
	if got := Convert(larr, 0); got.Text() != "large" {
		t.Fatalf("Convert(large_utf8) = %q", got.Text())
	}
}

func TestConvertDate32(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewDate32Builder(mem)
	defer b.Release()
	b.AppendValues([]arrow.Date32{0, -1, 18276, math.MaxInt32}, nil)
	arr := b.NewArray()
	defer arr.Release()

	want := []string{"1970-01-01", "1969-12-31", "2020-01-15"}
	for row, expected := range want {
		if got := Convert(arr, row); got.Text() != expected {
			t.Fatalf("Convert(date32 row %d) = %q, want %q", row, got.Text(), expected)
		}
	}
	if got := Convert(arr, 3); !got.IsNull() {
		t.Fatalf("Convert(out of range date32) = %v, want null", got.Interface())
	}
}

func TestConvertDate64DropsTimeOfDay(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewDate64Builder(mem)
	defer b.Release()
	b.AppendValues([]arrow.Date64{86_400_000 + 3_600_000, -1, math.MaxInt64}, nil)
	arr := b.NewArray()
	defer arr.Release()

	if got := Convert(arr, 0).Text(); got != "1970-01-02" {
		t.Fatalf("Convert(date64) = %q", got)
	}
	if got := Convert(arr, 1).Text(); got != "1969-12-31" {
		t.Fatalf("Convert(date64 -1ms) = %q", got)
	}
	if got := Convert(arr, 2); !got.IsNull() {
		t.Fatalf("Convert(out of range date64) = %v", got.Interface())
	}
}

func TestConvertTimestampUnitsAndZoneLabel(t *testing.T) {
	mem := newAllocator(t)
	cases := []struct {
		unit arrow.TimeUnit
		zone string
		raw  arrow.Timestamp
		want string
	}{
		{arrow.Second, "", 1672569000, "2023-01-01 10:30:00"},
		{arrow.Millisecond, "", 1672569000123, "2023-01-01 10:30:00.123"},
		{arrow.Microsecond, "", 1672569000123456, "2023-01-01 10:30:00.123456"},
		{arrow.Nanosecond, "", 1672569000123456789, "2023-01-01 10:30:00.123456789"},
		{arrow.Nanosecond, "", -1, "1969-12-31 23:59:59.999999999"},
		{arrow.Second, "America/New_York", 0, "1970-01-01 00:00:00 America/New_York"},
		{arrow.Second, "", math.MaxInt64, "InvalidTimestamp"},
		{arrow.Second, "UTC", math.MinInt64, "InvalidTimestamp UTC"},
	}
	for _, tc := range cases {
		b := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: tc.unit, TimeZone: tc.zone})
		b.Append(tc.raw)
		arr := b.NewArray()
		if got := Convert(arr, 0).Text(); got != tc.want {
			t.Fatalf("Convert(timestamp[%s, %q] %d) = %q, want %q", tc.unit, tc.zone, tc.raw, got, tc.want)
		}
		arr.Release()
		b.Release()
	}
}

func TestConvertTimeOfDay(t *testing.T) {
	mem := newAllocator(t)
	t32 := array.NewTime32Builder(mem, &arrow.Time32Type{Unit: arrow.Millisecond})
	defer t32.Release()
	t32.AppendValues([]arrow.Time32{(13*3600+5*60+7)*1000 + 250, -5}, nil)
	arr32 := t32.NewArray()
	defer arr32.Release()

	t64 := array.NewTime64Builder(mem, &arrow.Time64Type{Unit: arrow.Microsecond})
	defer t64.Release()
	t64.Append(arrow.Time64(1))
	arr64 := t64.NewArray()
	defer arr64.Release()

	if got := Convert(arr32, 0).Text(); got != "13:05:07.250" {
		t.Fatalf("Convert(time32) = %q", got)
	}
	if got := Convert(arr32, 1).Text(); got != "InvalidTime" {
		t.Fatalf("Convert(negative time32) = %q", got)
	}
	if got := Convert(arr64, 0).Text(); got != "00:00:00.000001" {
		t.Fatalf("Convert(time64) = %q", got)
	}
}

func TestConvertBinaryAsBase64(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
	defer b.Release()
	b.Append([]byte{0xDE, 0xAD})
	arr := b.NewArray()
	defer arr.Release()

	fb := array.NewFixedSizeBinaryBuilder(mem, &arrow.FixedSizeBinaryType{ByteWidth: 2})
	defer fb.Release()
	fb.Append([]byte{0xDE, 0xAD})
	farr := fb.NewArray()
	defer farr.Release()

	lb := array.NewBinaryBuilder(mem, arrow.BinaryTypes.LargeBinary)
	defer lb.Release()
	lb.Append([]byte{0xDE, 0xAD})
	larr := lb.NewArray()
	defer larr.Release()

	for _, candidate := range []arrow.Array{arr, farr, larr} {
		if got := Convert(candidate, 0).Text(); got != "3q0=" {
			t.Fatalf("Convert(%s) = %q, want 3q0=", candidate.DataType(), got)
		}
	}
}

func TestConvertStruct(t *testing.T) {
	mem := newAllocator(t)
	dt := arrow.StructOf(
		arrow.Field{Name: "a", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
		arrow.Field{Name: "b", Type: arrow.BinaryTypes.String, Nullable: true},
	)
	b := array.NewStructBuilder(mem, dt)
	defer b.Release()
	b.Append(true)
	b.FieldBuilder(0).(*array.Int32Builder).Append(1)
	b.FieldBuilder(1).(*array.StringBuilder).Append("x")
	arr := b.NewArray()
	defer arr.Release()

	got := Convert(arr, 0)
	if got.Kind() != KindObject {
		t.Fatalf("kind = %s", got.Kind())
	}
	members := got.Members()
	if len(members) != 2 || members[0].Name != "a" || members[1].Name != "b" {
		t.Fatalf("members = %+v", members)
	}
	if members[0].Value.Number() != "1" || members[1].Value.Text() != "x" {
		t.Fatalf("values = %v", got.Interface())
	}
	encoded, err := got.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `{"a":1,"b":"x"}` {
		t.Fatalf("json = %s", encoded)
	}
}

func TestConvertFixedSizeListVector(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewFixedSizeListBuilder(mem, 4, arrow.PrimitiveTypes.Float32)
	defer b.Release()
	values := b.ValueBuilder().(*array.Float32Builder)
	b.Append(true)
	values.AppendValues([]float32{9, 9, 9, 9}, nil)
	b.Append(true)
	values.AppendValues([]float32{0.1, 0.2, 0.3, 0.4}, nil)
	arr := b.NewArray()
	defer arr.Release()

	got := Convert(arr, 1)
	if got.Kind() != KindArray || len(got.Items()) != 4 {
		t.Fatalf("Convert(vector) = %v", got.Interface())
	}
	want := []float64{0.1, 0.2, 0.3, 0.4}
	for i, item := range got.Items() {
		f, err := item.Float64()
		if err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		if math.Abs(f-want[i]) > 1e-6 {
			t.Fatalf("item %d = %v, want %v", i, f, want[i])
		}
	}
}

func TestConvertSlicedFixedSizeListUsesStride(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewFixedSizeListBuilder(mem, 2, arrow.PrimitiveTypes.Int32)
	defer b.Release()
	values := b.ValueBuilder().(*array.Int32Builder)
	for i := int32(0); i < 3; i++ {
		b.Append(true)
		values.AppendValues([]int32{i * 10, i*10 + 1}, nil)
	}
	arr := b.NewArray()
	defer arr.Release()
	sliced := array.NewSlice(arr, 1, 3)
	defer sliced.Release()

	got := Convert(sliced, 1)
	items := got.Items()
	if len(items) != 2 || items[0].Number() != "20" || items[1].Number() != "21" {
		t.Fatalf("Convert(sliced, 1) = %v", got.Interface())
	}
}

func TestConvertListsRecurse(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewListBuilder(mem, arrow.BinaryTypes.String)
	defer b.Release()
	values := b.ValueBuilder().(*array.StringBuilder)
	b.Append(true)
	values.AppendValues([]string{"python", "data"}, nil)
	b.Append(true)
	b.Append(true)
	values.Append("rust")
	values.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	if got := Convert(arr, 0); len(got.Items()) != 2 || got.Items()[1].Text() != "data" {
		t.Fatalf("row 0 = %v", got.Interface())
	}
	if got := Convert(arr, 1); got.Kind() != KindArray || len(got.Items()) != 0 {
		t.Fatalf("row 1 = %v", got.Interface())
	}
	got := Convert(arr, 2)
	if len(got.Items()) != 2 || got.Items()[0].Text() != "rust" || !got.Items()[1].IsNull() {
		t.Fatalf("row 2 = %v", got.Interface())
	}

	lb := array.NewLargeListBuilder(mem, arrow.PrimitiveTypes.Int64)
	defer lb.Release()
	lvalues := lb.ValueBuilder().(*array.Int64Builder)
	lb.Append(true)
	lvalues.AppendValues([]int64{85, 90, 78}, nil)
	larr := lb.NewArray()
	defer larr.Release()
	encoded, err := Convert(larr, 0).MarshalJSON()
	if err != nil || string(encoded) != "[85,90,78]" {
		t.Fatalf("large list json = %s, %v", encoded, err)
	}
}

func TestConvertNestedListOfStructs(t *testing.T) {
	mem := newAllocator(t)
	itemType := arrow.StructOf(arrow.Field{Name: "k", Type: arrow.BinaryTypes.String, Nullable: true})
	b := array.NewListBuilder(mem, itemType)
	defer b.Release()
	items := b.ValueBuilder().(*array.StructBuilder)
	keys := items.FieldBuilder(0).(*array.StringBuilder)
	b.Append(true)
	items.Append(true)
	keys.Append("one")
	items.Append(true)
	keys.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	encoded, err := Convert(arr, 0).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `[{"k":"one"},{"k":null}]` {
		t.Fatalf("json = %s", encoded)
	}
}

func TestConvertDictionaryUsesValue(t *testing.T) {
	mem := newAllocator(t)
	dictValues := array.NewStringBuilder(mem)
	defer dictValues.Release()
	dictValues.AppendValues([]string{"cat_0", "cat_1"}, nil)
	dict := dictValues.NewArray()
	defer dict.Release()

	indexBuilder := array.NewInt8Builder(mem)
	defer indexBuilder.Release()
	indexBuilder.AppendValues([]int8{1, 0, 1}, nil)
	indices := indexBuilder.NewArray()
	defer indices.Release()

	arr := array.NewDictionaryArray(&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int8, ValueType: arrow.BinaryTypes.String}, indices, dict)
	defer arr.Release()

	if got := Convert(arr, 0).Text(); got != "cat_1" {
		t.Fatalf("Convert(dict, 0) = %q", got)
	}
	if got := Convert(arr, 1).Text(); got != "cat_0" {
		t.Fatalf("Convert(dict, 1) = %q", got)
	}
}

func TestConvertDecimalKeepsExactDigits(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewDecimal128Builder(mem, &arrow.Decimal128Type{Precision: 20, Scale: 2})
	defer b.Release()
	b.Append(decimal128.FromI64(-123456))
	b.Append(decimal128.FromI64(5))
	arr := b.NewArray()
	defer arr.Release()

	if got := Convert(arr, 0); got.Kind() != KindNumber || got.Number() != "-1234.56" {
		t.Fatalf("Convert(decimal) = %q", got.Number())
	}
	if got := Convert(arr, 1).Number(); got != "0.05" {
		t.Fatalf("Convert(decimal small) = %q", got)
	}
}

func TestConvertMapAsEntries(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewMapBuilder(mem, arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int32, false)
	defer b.Release()
	keys := b.KeyBuilder().(*array.StringBuilder)
	items := b.ItemBuilder().(*array.Int32Builder)
	b.Append(true)
	keys.Append("a")
	items.Append(1)
	keys.Append("b")
	items.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	encoded, err := Convert(arr, 0).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `[{"key":"a","value":1},{"key":"b","value":null}]` {
		t.Fatalf("json = %s", encoded)
	}
}

func TestConvertUnsupportedTypeYieldsPlaceholder(t *testing.T) {
	mem := newAllocator(t)
	b := array.NewDurationBuilder(mem, &arrow.DurationType{Unit: arrow.Second})
	defer b.Release()
	b.Append(arrow.Duration(30))
	arr := b.NewArray()
	defer arr.Release()

	got := Convert(arr, 0)
	if got.Kind() != KindText || !strings.HasPrefix(got.Text(), "<unsupported_type: duration") {
		t.Fatalf("Convert(duration) = %q", got.Text())
	}
}

func TestConvertRowKeysBySchemaName(t *testing.T) {
	mem := newAllocator(t)
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int32},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int32Builder).AppendValues([]int32{1, 2}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"Alice", ""}, []bool{true, false})
	rec := b.NewRecord()
	defer rec.Release()

	encoded, err := ConvertRow(rec, 1).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `{"id":2,"name":null}` {
		t.Fatalf("json = %s", encoded)
	}
}

func TestHasConversionMatchesConvert(t *testing.T) {
	cases := []struct {
		dt   arrow.DataType
		want bool
	}{
		{arrow.Null, true},
		{arrow.PrimitiveTypes.Int64, true},
		{arrow.ListOf(arrow.BinaryTypes.String), true},
		{&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int8, ValueType: arrow.BinaryTypes.String}, true},
		{&arrow.DurationType{Unit: arrow.Second}, false},
		{arrow.FixedWidthTypes.MonthInterval, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := HasConversion(tc.dt); got != tc.want {
			t.Fatalf("HasConversion(%v) = %v, want %v", tc.dt, got, tc.want)
		}
	}
}
