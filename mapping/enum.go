package mapping

import (
	"encoding"
	"reflect"

	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/tidwall/gjson"
)

// ToEnum converts a JSON string or number to an enum value. It returns false
// when the value is neither or does not name a member of the enum.
func ToEnum[T any, PT interface {
	*T
	encoding.TextUnmarshaler
}](raw gjson.Result) (T, bool) {
	var out T
	v := reflect.ValueOf(&out).Elem()

	switch raw.Type {
	case gjson.String:
		if err := PT(&out).UnmarshalText([]byte(raw.Str)); err != nil {
			return out, false
		}
		return out, true
	case gjson.Number:
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if v.OverflowInt(raw.Int()) {
				return out, false
			}
			v.SetInt(raw.Int())
			return out, true
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if raw.Int() < 0 || v.OverflowUint(raw.Uint()) {
				return out, false
			}
			v.SetUint(raw.Uint())
			return out, true
		}
	}

	return out, false
}

// EncodeValue returns the representation of a field value in an outbound
// request body. SharePoint REST expects integer enums as numbers while graph
// expects their names.
func EncodeValue(value any, apiType apimodels.APIType) any {
	if value == nil {
		return nil
	}
	v := reflect.ValueOf(value)
	marshaler, isText := value.(encoding.TextMarshaler)
	if !isText {
		return value
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if apiType == apimodels.SPORest {
			return v.Int()
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if apiType == apimodels.SPORest {
			return v.Uint()
		}
	default:
		return value
	}

	text, err := marshaler.MarshalText()
	if err != nil {
		return value
	}
	return string(text)
}
