// Package columnar maps Arrow types onto relational types and converts Arrow
// cells into canonical values.
package columnar

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/shopspring/decimal"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"

	invalidTimestamp = "InvalidTimestamp"
	invalidTime      = "InvalidTime"

	secondsPerDay = 86400
	nanosPerDay   = secondsPerDay * int64(time.Second)
)

// Dates and date-times are representable between -262143-01-01 and
// 262142-12-31T23:59:59.999999999 UTC.
var (
	minEpochSecond = time.Date(-262143, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxEpochSecond = time.Date(262142, time.December, 31, 23, 59, 59, 0, time.UTC).Unix()
)

// Convert turns the cell at row of arr into a canonical value. It never fails:
// null cells become Null, values outside the representable range degrade to
// Null or a marker text, and types without a conversion become a placeholder
// naming the type. row must be within [0, arr.Len()).
func Convert(arr arrow.Array, row int) Value {
	// Null arrays carry no validity bitmap, so IsNull reports false for them.
	if arr.DataType().ID() == arrow.NULL || arr.IsNull(row) {
		return Null()
	}

	switch a := arr.(type) {
	case *array.Boolean:
		return BoolValue(a.Value(row))
	case *array.Int8:
		return IntValue(int64(a.Value(row)))
	case *array.Int16:
		return IntValue(int64(a.Value(row)))
	case *array.Int32:
		return IntValue(int64(a.Value(row)))
	case *array.Int64:
		return IntValue(a.Value(row))
	case *array.Uint8:
		return UintValue(uint64(a.Value(row)))
	case *array.Uint16:
		return UintValue(uint64(a.Value(row)))
	case *array.Uint32:
		return UintValue(uint64(a.Value(row)))
	case *array.Uint64:
		return UintValue(a.Value(row))
	case *array.Float16:
		return FloatValue(float64(a.Value(row).Float32()))
	case *array.Float32:
		return FloatValue(float64(a.Value(row)))
	case *array.Float64:
		return FloatValue(a.Value(row))
	case *array.String:
		return TextValue(a.Value(row))
	case *array.LargeString:
		return TextValue(a.Value(row))
	case *array.StringView:
		return TextValue(a.Value(row))
	case *array.Binary:
		return base64Value(a.Value(row))
	case *array.LargeBinary:
		return base64Value(a.Value(row))
	case *array.FixedSizeBinary:
		return base64Value(a.Value(row))
	case *array.BinaryView:
		return base64Value(a.Value(row))
	case *array.Date32:
		return dateFromDays(int64(a.Value(row)))
	case *array.Date64:
		return dateFromMillis(int64(a.Value(row)))
	case *array.Timestamp:
		tsType, ok := a.DataType().(*arrow.TimestampType)
		if !ok {
			return placeholder(arr.DataType())
		}
		return timestampValue(int64(a.Value(row)), tsType.Unit, tsType.TimeZone)
	case *array.Time32:
		timeType, ok := a.DataType().(*arrow.Time32Type)
		if !ok {
			return placeholder(arr.DataType())
		}
		return timeOfDayValue(int64(a.Value(row)), timeType.Unit)
	case *array.Time64:
		timeType, ok := a.DataType().(*arrow.Time64Type)
		if !ok {
			return placeholder(arr.DataType())
		}
		return timeOfDayValue(int64(a.Value(row)), timeType.Unit)
	case *array.Decimal128:
		decType, ok := a.DataType().(*arrow.Decimal128Type)
		if !ok {
			return placeholder(arr.DataType())
		}
		return NumberValue(decimal.NewFromBigInt(a.Value(row).BigInt(), -decType.Scale).String())
	case *array.Decimal256:
		decType, ok := a.DataType().(*arrow.Decimal256Type)
		if !ok {
			return placeholder(arr.DataType())
		}
		return NumberValue(decimal.NewFromBigInt(a.Value(row).BigInt(), -decType.Scale).String())
	case *array.Map:
		start, end := a.ValueOffsets(row)
		return mapEntries(a.Keys(), a.Items(), start, end)
	case *array.List:
		start, end := a.ValueOffsets(row)
		return listRange(a.ListValues(), start, end)
	case *array.LargeList:
		start, end := a.ValueOffsets(row)
		return listRange(a.ListValues(), start, end)
	case *array.FixedSizeList:
		listType, ok := a.DataType().(*arrow.FixedSizeListType)
		if !ok {
			return placeholder(arr.DataType())
		}
		stride := int64(listType.Len())
		start := (int64(a.Data().Offset()) + int64(row)) * stride
		return listRange(a.ListValues(), start, start+stride)
	case *array.Struct:
		return structValue(a, row)
	case *array.Dictionary:
		return Convert(a.Dictionary(), a.GetValueIndex(row))
	default:
		return placeholder(arr.DataType())
	}
}

// ConvertRow builds the object for one row of rec, keyed by schema field name
// in schema order.
func ConvertRow(rec arrow.Record, row int) Value {
	schema := rec.Schema()
	members := make([]Member, 0, rec.NumCols())
	for i, column := range rec.Columns() {
		members = append(members, Member{
			Name:  schema.Field(i).Name,
			Value: Convert(column, row),
		})
	}
	return ObjectValue(members)
}

// HasConversion reports whether Convert yields typed values for columns of dt
// rather than the unsupported type placeholder.
func HasConversion(dt arrow.DataType) bool {
	if dt == nil {
		return false
	}
	switch dt.ID() {
	case arrow.NULL, arrow.BOOL,
		arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64,
		arrow.STRING, arrow.LARGE_STRING, arrow.STRING_VIEW,
		arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY, arrow.BINARY_VIEW,
		arrow.DATE32, arrow.DATE64, arrow.TIMESTAMP, arrow.TIME32, arrow.TIME64,
		arrow.DECIMAL128, arrow.DECIMAL256,
		arrow.MAP, arrow.LIST, arrow.LARGE_LIST, arrow.FIXED_SIZE_LIST, arrow.STRUCT:
		return true
	case arrow.DICTIONARY:
		dict, ok := dt.(*arrow.DictionaryType)
		return ok && HasConversion(dict.ValueType)
	default:
		return false
	}
}

func placeholder(dt arrow.DataType) Value {
	return TextValue(fmt.Sprintf("<unsupported_type: %s>", typeString(dt)))
}

func base64Value(raw []byte) Value {
	return TextValue(base64.StdEncoding.EncodeToString(raw))
}

func listRange(values arrow.Array, start, end int64) Value {
	if end < start {
		return ArrayValue(nil)
	}
	items := make([]Value, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, Convert(values, int(i)))
	}
	return ArrayValue(items)
}

func mapEntries(keys, items arrow.Array, start, end int64) Value {
	if end < start {
		return ArrayValue(nil)
	}
	entries := make([]Value, 0, end-start)
	for i := start; i < end; i++ {
		entries = append(entries, ObjectValue([]Member{
			{Name: "key", Value: Convert(keys, int(i))},
			{Name: "value", Value: Convert(items, int(i))},
		}))
	}
	return ArrayValue(entries)
}

func structValue(a *array.Struct, row int) Value {
	structType, ok := a.DataType().(*arrow.StructType)
	if !ok {
		return placeholder(a.DataType())
	}
	members := make([]Member, 0, a.NumField())
	for i := 0; i < a.NumField(); i++ {
		members = append(members, Member{
			Name:  structType.Field(i).Name,
			Value: Convert(a.Field(i), row),
		})
	}
	return ObjectValue(members)
}

func dateFromDays(days int64) Value {
	if days < minEpochSecond/secondsPerDay || days > maxEpochSecond/secondsPerDay {
		return Null()
	}
	return TextValue(time.Unix(days*secondsPerDay, 0).UTC().Format(dateLayout))
}

func dateFromMillis(millis int64) Value {
	seconds := floorDiv(millis, 1000)
	if seconds < minEpochSecond || seconds > maxEpochSecond {
		return Null()
	}
	return TextValue(time.Unix(seconds, 0).UTC().Format(dateLayout))
}

func timestampValue(raw int64, unit arrow.TimeUnit, zone string) Value {
	text := invalidTimestamp
	if seconds, nanos, ok := splitEpoch(raw, unit); ok && seconds >= minEpochSecond && seconds <= maxEpochSecond {
		t := time.Unix(seconds, nanos).UTC()
		text = t.Format(dateTimeLayout) + fraction(nanos)
	}
	if zone != "" {
		text += " " + zone
	}
	return TextValue(text)
}

func timeOfDayValue(raw int64, unit arrow.TimeUnit) Value {
	nanos, ok := scaleToNanos(raw, unit)
	if !ok || nanos < 0 || nanos >= nanosPerDay {
		return TextValue(invalidTime)
	}
	seconds := nanos / int64(time.Second)
	text := fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
	return TextValue(text + fraction(nanos%int64(time.Second)))
}

func splitEpoch(raw int64, unit arrow.TimeUnit) (int64, int64, bool) {
	switch unit {
	case arrow.Second:
		return raw, 0, true
	case arrow.Millisecond:
		return floorDiv(raw, 1e3), floorMod(raw, 1e3) * 1e6, true
	case arrow.Microsecond:
		return floorDiv(raw, 1e6), floorMod(raw, 1e6) * 1e3, true
	case arrow.Nanosecond:
		return floorDiv(raw, 1e9), floorMod(raw, 1e9), true
	default:
		return 0, 0, false
	}
}

// scaleToNanos is only used for time-of-day values, whose valid range is far
// below the point where the multiplication could overflow.
func scaleToNanos(raw int64, unit arrow.TimeUnit) (int64, bool) {
	var factor int64
	switch unit {
	case arrow.Second:
		factor = int64(time.Second)
	case arrow.Millisecond:
		factor = int64(time.Millisecond)
	case arrow.Microsecond:
		factor = int64(time.Microsecond)
	case arrow.Nanosecond:
		factor = 1
	default:
		return 0, false
	}
	if raw < 0 || raw > nanosPerDay/factor {
		return 0, false
	}
	return raw * factor, true
}

func fraction(nanos int64) string {
	switch {
	case nanos == 0:
		return ""
	case nanos%1e6 == 0:
		return fmt.Sprintf(".%03d", nanos/1e6)
	case nanos%1e3 == 0:
		return fmt.Sprintf(".%06d", nanos/1e3)
	default:
		return fmt.Sprintf(".%09d", nanos)
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}
