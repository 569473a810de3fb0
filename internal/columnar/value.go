package columnar

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Member is one named entry of an object value.
type Member struct {
	Name  string
	Value Value
}

// Value is the canonical, source-independent representation of one cell.
// Numbers keep their exact decimal literal so 64-bit integers and decimals
// survive without a float64 round trip. The zero Value is Null.
type Value struct {
	kind    Kind
	boolean bool
	literal string
	items   []Value
	members []Member
}

func Null() Value {
	return Value{}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, boolean: b}
}

func IntValue(n int64) Value {
	return Value{kind: KindNumber, literal: strconv.FormatInt(n, 10)}
}

func UintValue(n uint64) Value {
	return Value{kind: KindNumber, literal: strconv.FormatUint(n, 10)}
}

// FloatValue returns Null for NaN and infinities, which have no JSON form.
func FloatValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindNumber, literal: strconv.FormatFloat(f, 'g', -1, 64)}
}

// NumberValue wraps an already formatted decimal literal.
func NumberValue(literal string) Value {
	return Value{kind: KindNumber, literal: literal}
}

func TextValue(s string) Value {
	return Value{kind: KindText, literal: s}
}

func ArrayValue(items []Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, items: items}
}

// ObjectValue keeps members in the given order. A repeated name replaces the
// earlier value but keeps the earlier position.
func ObjectValue(members []Member) Value {
	out := make([]Member, 0, len(members))
	seen := make(map[string]int, len(members))
	for _, member := range members {
		if idx, ok := seen[member.Name]; ok {
			out[idx].Value = member.Value
			continue
		}
		seen[member.Name] = len(out)
		out = append(out, member)
	}
	return Value{kind: KindObject, members: out}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) Bool() bool {
	return v.kind == KindBool && v.boolean
}

// Number returns the decimal literal of a number value, or "" otherwise.
func (v Value) Number() string {
	if v.kind != KindNumber {
		return ""
	}
	return v.literal
}

func (v Value) Float64() (float64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("value is %s, not a number", v.kind)
	}
	return strconv.ParseFloat(v.literal, 64)
}

func (v Value) Text() string {
	if v.kind != KindText {
		return ""
	}
	return v.literal
}

func (v Value) Items() []Value {
	return v.items
}

func (v Value) Members() []Member {
	return v.members
}

func (v Value) Field(name string) (Value, bool) {
	for _, member := range v.members {
		if member.Name == name {
			return member.Value, true
		}
	}
	return Value{}, false
}

// Interface converts the value into plain Go data (nil, bool, json.Number,
// string, []any, map[string]any). Member order is lost for objects.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindNumber:
		return json.Number(v.literal)
	case KindText:
		return v.literal
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.members))
		for _, member := range v.members {
			out[member.Name] = member.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.appendJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) appendJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		buf.WriteString(v.literal)
	case KindText:
		return appendJSONString(buf, v.literal)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, member := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := appendJSONString(buf, member.Name); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := member.Value.appendJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("marshal value: unknown kind %d", v.kind)
	}
	return nil
}

// appendJSONString writes s as a JSON string without HTML escaping, so
// placeholder text such as <unsupported_type: T> stays readable.
func appendJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("marshal string: %w", err)
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
