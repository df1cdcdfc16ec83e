package mapping

import (
	"encoding"
	"reflect"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// Decode coerces a JSON value to the given type. Null and missing values
// decode to the zero value. Struct fields of nested objects are matched by
// the tagName struct tag, falling back to the field name.
func Decode(raw gjson.Result, typ reflect.Type, tagName string) (reflect.Value, error) {
	out := reflect.New(typ).Elem()
	if !raw.Exists() || raw.Type == gjson.Null {
		return out, nil
	}

	if typ.Kind() == reflect.Ptr {
		elem, err := Decode(raw, typ.Elem(), tagName)
		if err != nil {
			return out, err
		}
		ptr := reflect.New(typ.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	if ok, err := decodeText(raw, out); ok {
		return out, err
	}

	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if raw.Type == gjson.Number {
			if out.OverflowInt(raw.Int()) {
				return out, errors.Errorf("value %s overflows %s", raw.Raw, typ)
			}
			out.SetInt(raw.Int())
			return out, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if raw.Type == gjson.Number {
			if raw.Int() < 0 || out.OverflowUint(raw.Uint()) {
				return out, errors.Errorf("value %s overflows %s", raw.Raw, typ)
			}
			out.SetUint(raw.Uint())
			return out, nil
		}
	case reflect.String:
		if raw.Type == gjson.String {
			out.SetString(raw.Str)
			return out, nil
		}
	case reflect.Slice, reflect.Array:
		if raw.IsObject() {
			if results := raw.Get(spmodel.RESTResults); results.IsArray() {
				raw = results
			}
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(unwrapResultsHook, textUnmarshalerHook),
		WeaklyTypedInput: true,
		TagName:          tagName,
		Result:           out.Addr().Interface(),
	})
	if err != nil {
		return out, errors.Wrap(err, "creating decoder")
	}
	if err = decoder.Decode(raw.Value()); err != nil {
		return reflect.New(typ).Elem(), errors.Wrapf(err, "decoding %s into %s", raw.Type, typ)
	}

	return out, nil
}

// decodeText handles targets implementing encoding.TextUnmarshaler, e.g.
// GUIDs, timestamps and enums, from JSON strings.
func decodeText(raw gjson.Result, out reflect.Value) (bool, error) {
	if raw.Type != gjson.String || !reflect.PointerTo(out.Type()).Implements(textUnmarshalerType) {
		return false, nil
	}
	if raw.Str == "" {
		return true, nil
	}
	u := out.Addr().Interface().(encoding.TextUnmarshaler)
	if err := u.UnmarshalText([]byte(raw.Str)); err != nil {
		return true, errors.Wrapf(err, "unmarshalling '%s' into %s", raw.Str, out.Type())
	}
	return true, nil
}

func textUnmarshalerHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || !reflect.PointerTo(to).Implements(textUnmarshalerType) {
		return data, nil
	}
	text, _ := data.(string)
	v := reflect.New(to)
	if text == "" {
		return v.Elem().Interface(), nil
	}
	if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling '%s' into %s", text, to)
	}
	return v.Elem().Interface(), nil
}

func unwrapResultsHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.Map || (to.Kind() != reflect.Slice && to.Kind() != reflect.Array) {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	if results, ok := m[spmodel.RESTResults]; ok {
		return results, nil
	}
	return data, nil
}

// IsNavigationStub reports whether a verbose OData value is a deferred link
// rather than data.
func IsNavigationStub(raw gjson.Result) bool {
	return raw.IsObject() && raw.Get(spmodel.RESTDeferredProperty).Exists() && len(raw.Map()) == 1
}

// IsAnnotation reports whether a JSON property carries protocol metadata
// rather than model data.
func IsAnnotation(name string) bool {
	return name == spmodel.RESTMetadataProperty || name == spmodel.RESTDeferredProperty || strings.Contains(name, spmodel.GraphAnnotation)
}
