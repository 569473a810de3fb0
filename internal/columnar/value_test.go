package columnar

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestObjectValueKeepsFirstPositionForDuplicateNames(t *testing.T) {
	v := ObjectValue([]Member{
		{Name: "a", Value: IntValue(1)},
		{Name: "b", Value: TextValue("x")},
		{Name: "a", Value: IntValue(2)},
	})
	encoded, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `{"a":2,"b":"x"}` {
		t.Fatalf("json = %s", encoded)
	}
	if got, ok := v.Field("a"); !ok || got.Number() != "2" {
		t.Fatalf("Field(a) = %v, %v", got.Interface(), ok)
	}
}

func TestValueMarshalJSONEscapesText(t *testing.T) {
	v := ArrayValue([]Value{TextValue("quote \" and <tag>"), Null(), BoolValue(true), FloatValue(0.5)})
	encoded, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `["quote \" and <tag>",null,true,0.5]` {
		t.Fatalf("json = %s", encoded)
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() || v.Kind() != KindNull {
		t.Fatalf("zero value kind = %s", v.Kind())
	}
	if ArrayValue(nil).Items() == nil {
		t.Fatal("ArrayValue(nil) should produce an empty array")
	}
	if _, err := TextValue("1").Float64(); err == nil {
		t.Fatal("Float64() on text expected error")
	}
}

func TestInterfaceUsesJSONNumber(t *testing.T) {
	got, ok := UintValue(18446744073709551615).Interface().(json.Number)
	if !ok || string(got) != "18446744073709551615" {
		t.Fatalf("Interface() = %#v", got)
	}
}

func TestValueMarshalJSONKeepsHTMLCharacters(t *testing.T) {
	v := ObjectValue([]Member{
		{Name: "a&b", Value: TextValue("<unsupported_type: null>")},
		{Name: "n", Value: IntValue(1)},
	})
	encoded, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(encoded) != `{"a&b":"<unsupported_type: null>","n":1}` {
		t.Fatalf("json = %s", encoded)
	}
}
