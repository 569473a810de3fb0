package columnar

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/jackc/pgx/v5/pgtype"
)

// Descriptor identifies the relational type a column is exposed as. OIDs are
// PostgreSQL built-in type OIDs.
type Descriptor struct {
	OID uint32
}

var (
	Boolean     = Descriptor{OID: pgtype.BoolOID}
	Char        = Descriptor{OID: pgtype.QCharOID}
	Int2        = Descriptor{OID: pgtype.Int2OID}
	Int4        = Descriptor{OID: pgtype.Int4OID}
	Int8        = Descriptor{OID: pgtype.Int8OID}
	Float4      = Descriptor{OID: pgtype.Float4OID}
	Float8      = Descriptor{OID: pgtype.Float8OID}
	Text        = Descriptor{OID: pgtype.TextOID}
	Bytea       = Descriptor{OID: pgtype.ByteaOID}
	Date        = Descriptor{OID: pgtype.DateOID}
	Time        = Descriptor{OID: pgtype.TimeOID}
	Timestamp   = Descriptor{OID: pgtype.TimestampOID}
	Interval    = Descriptor{OID: pgtype.IntervalOID}
	Numeric     = Descriptor{OID: pgtype.NumericOID}
	JSONB       = Descriptor{OID: pgtype.JSONBOID}
	Float4Array = Descriptor{OID: pgtype.Float4ArrayOID}
	Float8Array = Descriptor{OID: pgtype.Float8ArrayOID}
)

// TypeName returns the display name of a descriptor.
func TypeName(d Descriptor) string {
	switch d.OID {
	case pgtype.BoolOID:
		return "boolean"
	case pgtype.QCharOID:
		return "char"
	case pgtype.Int2OID:
		return "int2"
	case pgtype.Int4OID:
		return "int4"
	case pgtype.Int8OID:
		return "int8"
	case pgtype.Float4OID:
		return "float4"
	case pgtype.Float8OID:
		return "float8"
	case pgtype.TextOID:
		return "text"
	case pgtype.ByteaOID:
		return "bytea"
	case pgtype.DateOID:
		return "date"
	case pgtype.TimeOID:
		return "time"
	case pgtype.TimestampOID:
		return "timestamp"
	case pgtype.IntervalOID:
		return "interval"
	case pgtype.NumericOID:
		return "numeric"
	case pgtype.JSONBOID:
		return "jsonb"
	case pgtype.Float4ArrayOID:
		return "float4[]"
	case pgtype.Float8ArrayOID:
		return "float8[]"
	default:
		return "unknown"
	}
}

func (d Descriptor) String() string {
	return TypeName(d)
}

// UnsupportedTypeWarning reports a column whose Arrow type has no direct
// relational equivalent and is exposed as text instead.
type UnsupportedTypeWarning struct {
	Column string
	Type   string
}

func (w UnsupportedTypeWarning) String() string {
	return fmt.Sprintf("unsupported arrow type %s for column %q, converting to text", w.Type, w.Column)
}

// MapType maps an Arrow type onto its relational descriptor. Types without a
// relational equivalent map to Text; use Supported to tell them apart.
func MapType(dt arrow.DataType) Descriptor {
	d, _ := mapType(dt)
	return d
}

// Supported reports whether MapType has a direct mapping for dt.
func Supported(dt arrow.DataType) bool {
	_, ok := mapType(dt)
	return ok
}

func mapType(dt arrow.DataType) (Descriptor, bool) {
	if dt == nil {
		return Text, false
	}
	switch dt.ID() {
	case arrow.BOOL:
		return Boolean, true
	case arrow.INT8, arrow.UINT8:
		return Char, true
	case arrow.INT16, arrow.UINT16:
		return Int2, true
	case arrow.INT32, arrow.UINT32:
		return Int4, true
	case arrow.INT64, arrow.UINT64:
		return Int8, true
	case arrow.FLOAT16, arrow.FLOAT32:
		return Float4, true
	case arrow.FLOAT64:
		return Float8, true
	case arrow.STRING, arrow.LARGE_STRING, arrow.STRING_VIEW:
		return Text, true
	case arrow.BINARY, arrow.LARGE_BINARY, arrow.FIXED_SIZE_BINARY, arrow.BINARY_VIEW:
		return Bytea, true
	case arrow.DATE32, arrow.DATE64:
		return Date, true
	case arrow.TIME32, arrow.TIME64:
		return Time, true
	case arrow.TIMESTAMP:
		return Timestamp, true
	case arrow.INTERVAL_MONTHS, arrow.INTERVAL_DAY_TIME, arrow.INTERVAL_MONTH_DAY_NANO:
		return Interval, true
	case arrow.LIST, arrow.LARGE_LIST, arrow.STRUCT, arrow.SPARSE_UNION, arrow.DENSE_UNION, arrow.MAP:
		return JSONB, true
	case arrow.FIXED_SIZE_LIST:
		fsl, ok := dt.(*arrow.FixedSizeListType)
		if !ok {
			return JSONB, true
		}
		switch fsl.Elem().ID() {
		case arrow.FLOAT32:
			return Float4Array, true
		case arrow.FLOAT64:
			return Float8Array, true
		default:
			return JSONB, true
		}
	case arrow.DICTIONARY:
		dict, ok := dt.(*arrow.DictionaryType)
		if !ok {
			return Text, false
		}
		return mapType(dict.ValueType)
	case arrow.DECIMAL128, arrow.DECIMAL256:
		return Numeric, true
	default:
		return Text, false
	}
}

// Column is the relational projection of one schema field.
type Column struct {
	Name       string
	Type       arrow.DataType
	Descriptor Descriptor
	Nullable   bool
}

func (c Column) TypeName() string {
	return TypeName(c.Descriptor)
}

// WarningFunc receives a warning for each column that falls back to text.
type WarningFunc func(UnsupportedTypeWarning)

// MapField projects one schema field. warn may be nil.
func MapField(field arrow.Field, warn WarningFunc) Column {
	descriptor, ok := mapType(field.Type)
	if !ok && warn != nil {
		warn(UnsupportedTypeWarning{Column: field.Name, Type: typeString(field.Type)})
	}
	return Column{
		Name:       field.Name,
		Type:       field.Type,
		Descriptor: descriptor,
		Nullable:   field.Nullable,
	}
}

// MapSchema projects every field of schema in order and collects a warning
// for each field that fell back to text.
func MapSchema(schema *arrow.Schema) ([]Column, []UnsupportedTypeWarning) {
	if schema == nil {
		return nil, nil
	}
	fields := schema.Fields()
	columns := make([]Column, 0, len(fields))
	var warnings []UnsupportedTypeWarning
	collect := func(w UnsupportedTypeWarning) { warnings = append(warnings, w) }
	for _, field := range fields {
		columns = append(columns, MapField(field, collect))
	}
	return columns, warnings
}

func typeString(dt arrow.DataType) string {
	if dt == nil {
		return "<nil>"
	}
	return dt.String()
}
