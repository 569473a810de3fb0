package seed

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

var simpleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "salary", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "is_active", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: "hire_date", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
}, nil)

func buildSimple(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, simpleSchema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3, 4, 5}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"Alice", "Bob", "Charlie", "David", "Eve"}, nil)
	b.Field(2).(*array.Int64Builder).AppendValues([]int64{25, 30, 35, 40, 45}, nil)
	b.Field(3).(*array.Float64Builder).AppendValues([]float64{50000.5, 65000.0, 80000.25, 95000.75, 120000.0}, nil)
	b.Field(4).(*array.BooleanBuilder).AppendValues([]bool{true, true, false, true, false}, nil)
	dates := b.Field(5).(*array.Date32Builder)
	for _, d := range []time.Time{
		day(2020, time.January, 15),
		day(2019, time.June, 20),
		day(2021, time.March, 10),
		day(2018, time.September, 5),
		day(2022, time.November, 30),
	} {
		dates.Append(arrow.Date32FromTime(d))
	}
	return b.NewRecord()
}

var vectorSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "document", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "embedding", Type: arrow.FixedSizeListOf(4, arrow.PrimitiveTypes.Float32), Nullable: true},
	{Name: "metadata", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

func buildVector(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, vectorSchema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3, 4, 5}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"doc1", "doc2", "doc3", "doc4", "doc5"}, nil)
	embeddings := b.Field(2).(*array.FixedSizeListBuilder)
	values := embeddings.ValueBuilder().(*array.Float32Builder)
	for _, vec := range [][]float32{
		{0.1, 0.2, 0.3, 0.4},
		{0.5, 0.6, 0.7, 0.8},
		{0.9, 1.0, 1.1, 1.2},
		{1.3, 1.4, 1.5, 1.6},
		{1.7, 1.8, 1.9, 2.0},
	} {
		embeddings.Append(true)
		values.AppendValues(vec, nil)
	}
	// metadata stays JSON text; it is not decoded into an object.
	b.Field(3).(*array.StringBuilder).AppendValues([]string{
		`{"category": "A", "score": 0.95}`,
		`{"category": "B", "score": 0.87}`,
		`{"category": "A", "score": 0.92}`,
		`{"category": "C", "score": 0.78}`,
		`{"category": "B", "score": 0.89}`,
	}, nil)
	return b.NewRecord()
}

var profileType = arrow.StructOf(
	arrow.Field{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	arrow.Field{Name: "age", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	arrow.Field{Name: "city", Type: arrow.BinaryTypes.String, Nullable: true},
)

var complexSchema = arrow.NewSchema([]arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "user_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "scores", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
	{Name: "profile", Type: profileType, Nullable: true},
	{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	{Name: "created_at", Type: &arrow.TimestampType{Unit: arrow.Microsecond}, Nullable: true},
}, nil)

type profile struct {
	name string
	age  int64
	city string
}

func buildComplex(mem memory.Allocator) arrow.Record {
	b := array.NewRecordBuilder(mem, complexSchema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2, 3}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"user1", "user2", "user3"}, nil)

	scores := b.Field(2).(*array.ListBuilder)
	scoreValues := scores.ValueBuilder().(*array.Int64Builder)
	for _, row := range [][]int64{{85, 90, 78}, {92, 88, 95}, {76, 82, 89}} {
		scores.Append(true)
		scoreValues.AppendValues(row, nil)
	}

	profiles := b.Field(3).(*array.StructBuilder)
	names := profiles.FieldBuilder(0).(*array.StringBuilder)
	ages := profiles.FieldBuilder(1).(*array.Int64Builder)
	cities := profiles.FieldBuilder(2).(*array.StringBuilder)
	for _, p := range []profile{{"John", 30, "NYC"}, {"Jane", 25, "LA"}, {"Bob", 35, "Chicago"}} {
		profiles.Append(true)
		names.Append(p.name)
		ages.Append(p.age)
		cities.Append(p.city)
	}

	tags := b.Field(4).(*array.ListBuilder)
	tagValues := tags.ValueBuilder().(*array.StringBuilder)
	for _, row := range [][]string{
		{"python", "data", "ml"},
		{"javascript", "web", "react"},
		{"rust", "systems", "performance"},
	} {
		tags.Append(true)
		tagValues.AppendValues(row, nil)
	}

	created := b.Field(5).(*array.TimestampBuilder)
	for _, ts := range []time.Time{
		time.Date(2023, time.January, 1, 10, 30, 0, 0, time.UTC),
		time.Date(2023, time.February, 15, 14, 45, 0, 0, time.UTC),
		time.Date(2023, time.March, 20, 9, 15, 0, 0, time.UTC),
	} {
		created.Append(arrow.Timestamp(ts.UnixMicro()))
	}
	return b.NewRecord()
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}
