package metadata

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"

	"github.com/evergreen-ci/spmodel"
)

const parentToken = "Parent"

// TokenSource supplies the values bound to URL template placeholders.
type TokenSource interface {
	// TokenName identifies the source in errors.
	TokenName() string
	// TokenValue returns the value of a token, and false if the source has no
	// such token.
	TokenValue(name string) (any, bool)
	// TokenParent returns the source {Parent.X} placeholders are resolved
	// against, or nil.
	TokenParent() TokenSource
}

// ResolveTemplate binds every {placeholder} in the template. Placeholders
// name a field of the source ({Id}), of one of its ancestors ({Parent.Id},
// {Parent.Parent.Id}), or a context token present in extra ({hostname}).
// A placeholder is unresolved when its source is missing or its value is the
// zero value; unresolved placeholders fail with a MetadataError.
func ResolveTemplate(template string, src TokenSource, extra map[string]string) (string, error) {
	var out strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", spmodel.NewMetadataError(sourceName(src), "", "unterminated placeholder in template '%s'", template)
		}
		end += start

		out.WriteString(rest[:start])
		value, err := resolveToken(rest[start+1:end], src, extra)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
		rest = rest[end+1:]
	}

	return out.String(), nil
}

func resolveToken(token string, src TokenSource, extra map[string]string) (string, error) {
	if token == "" {
		return "", spmodel.NewMetadataError(sourceName(src), "", "empty placeholder")
	}
	if value, ok := extra[token]; ok {
		if value == "" {
			return "", spmodel.NewMetadataError(sourceName(src), token, "context token has no value")
		}
		return value, nil
	}

	name := token
	current := src
	for strings.HasPrefix(name, parentToken+".") {
		if current == nil {
			break
		}
		current = current.TokenParent()
		name = strings.TrimPrefix(name, parentToken+".")
	}
	if current == nil {
		return "", spmodel.NewMetadataError(sourceName(src), token, "placeholder refers to a missing parent")
	}

	value, ok := current.TokenValue(name)
	if !ok {
		return "", spmodel.NewMetadataError(current.TokenName(), token, "placeholder does not name a field")
	}
	if isZero(value) {
		return "", spmodel.NewMetadataError(current.TokenName(), token, "placeholder field has no value")
	}

	return formatToken(value), nil
}

func sourceName(src TokenSource) string {
	if src == nil {
		return "<nil>"
	}
	return src.TokenName()
}

func isZero(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return true
	}
	return v.IsZero()
}

func formatToken(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case encoding.TextMarshaler:
		if text, err := v.MarshalText(); err == nil {
			return string(text)
		}
	}
	return fmt.Sprint(value)
}

// FieldToken returns the value of the named token on an instance of the
// entity type: a declared token alias, a Go field name or a remote property
// name, in that order.
func (e *EntityInfo) FieldToken(instance reflect.Value, name string) (any, bool) {
	for instance.Kind() == reflect.Ptr {
		if instance.IsNil() {
			return nil, false
		}
		instance = instance.Elem()
	}
	if instance.Type() != e.GoType {
		return nil, false
	}

	if alias, ok := e.Tokens[name]; ok {
		name = alias
	}
	f, ok := e.byName[name]
	if !ok {
		if f, ok = e.bySharePoint[name]; !ok {
			if f, ok = e.byGraph[name]; !ok {
				return nil, false
			}
		}
	}

	return instance.FieldByIndex(f.Index).Interface(), true
}
