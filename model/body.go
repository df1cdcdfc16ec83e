package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/pkg/errors"
)

// Body is a JSON object that keeps its properties in insertion order.
type Body struct {
	keys   []string
	values map[string]any
}

func NewBody() *Body {
	return &Body{values: map[string]any{}}
}

// NewEntityBody returns a body carrying the type tag of the protocol:
// {"__metadata":{"type":T}} for SharePoint REST and {"@odata.type":T} for
// graph. No tag is written when typeName is empty.
func NewEntityBody(apiType apimodels.APIType, typeName string) *Body {
	b := NewBody()
	if typeName == "" {
		return b
	}
	if apiType == apimodels.Graph {
		return b.Set(spmodel.GraphTypeProperty, typeName)
	}
	return b.Set(spmodel.RESTMetadataProperty, NewBody().Set("type", typeName))
}

// Set sets a property, keeping the position of an existing one.
func (b *Body) Set(key string, value any) *Body {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
	return b
}

// SetPath sets a nested property addressed by a dotted path.
func (b *Body) SetPath(path string, value any) *Body {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return b.Set(head, value)
	}
	child, ok := b.values[head].(*Body)
	if !ok {
		child = NewBody()
		b.Set(head, child)
	}
	child.SetPath(rest, value)
	return b
}

// Len returns the number of top level properties.
func (b *Body) Len() int { return len(b.keys) }

func (b *Body) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshal(key)
		if err != nil {
			return nil, errors.Wrapf(err, "marshalling key '%s'", key)
		}
		v, err := marshal(b.values[key])
		if err != nil {
			return nil, errors.Wrapf(err, "marshalling property '%s'", key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders the body as JSON. Markup such as CAML views is not escaped.
func (b *Body) Encode() (string, error) {
	out, err := marshal(b)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(out), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
