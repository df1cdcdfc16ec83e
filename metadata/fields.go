package metadata

import (
	"encoding"
	"reflect"
	"strings"
	"time"

	"github.com/evergreen-ci/spmodel/apimodels"
)

const (
	SharePointTag = "sp"
	GraphTag      = "graph"

	optionKey        = "key"
	optionAdd        = "add"
	optionCollection = "collection"
)

// Kind is the semantic type of a mapped field.
type Kind int

const (
	// Primitive fields are passed through with type coercion.
	Primitive Kind = iota
	// Enum fields are integer or string types that unmarshal from text.
	Enum
	// Object fields are nested structs mapped recursively.
	Object
	// Collection fields hold child model instances.
	Collection
)

func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case Enum:
		return "enum"
	case Object:
		return "object"
	case Collection:
		return "collection"
	default:
		return "unknown"
	}
}

// CollectionMarker is implemented by model collections so that fields
// holding them are recognized as Collection kind.
type CollectionMarker interface {
	IsEntityCollection()
}

var (
	collectionMarkerType = reflect.TypeOf((*CollectionMarker)(nil)).Elem()
	textUnmarshalerType  = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	timeType             = reflect.TypeOf(time.Time{})
)

// FieldInfo maps one local field to its remote names.
type FieldInfo struct {
	// Name is the Go field name. It is also the name used in URL templates.
	Name string
	// SharePoint is the remote property name for SharePoint REST, empty if the
	// field is not exposed there.
	SharePoint string
	// Graph is the remote property path for graph, empty if the field is not
	// exposed there. Nested graph properties use dotted paths.
	Graph string
	Kind  Kind
	Type  reflect.Type
	Index []int
	// Key marks the identity field used to merge collection children.
	Key bool
	// Add marks the field as part of the default add request body.
	Add bool
}

// RemoteName returns the field's name on the given protocol.
func (f *FieldInfo) RemoteName(apiType apimodels.APIType) string {
	if apiType == apimodels.Graph {
		return f.Graph
	}
	return f.SharePoint
}

type tagValue struct {
	name    string
	skip    bool
	present bool
	options []string
}

func parseTag(field reflect.StructField, tag string) tagValue {
	raw, ok := field.Tag.Lookup(tag)
	if !ok {
		return tagValue{}
	}
	parts := strings.Split(raw, ",")
	tv := tagValue{name: strings.TrimSpace(parts[0]), present: true}
	if tv.name == "-" {
		tv.skip = true
		return tv
	}
	for _, opt := range parts[1:] {
		if opt = strings.TrimSpace(opt); opt != "" {
			tv.options = append(tv.options, opt)
		}
	}
	return tv
}

func (tv tagValue) has(option string) bool {
	for _, opt := range tv.options {
		if opt == option {
			return true
		}
	}
	return false
}

// parseFields reads the field mappings of a struct type. Exported fields
// without an sp tag map to their Go name on SharePoint REST; fields are only
// exposed on graph when they carry a graph tag.
func parseFields(t reflect.Type) []*FieldInfo {
	var fields []*FieldInfo
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous || !sf.IsExported() {
			continue
		}

		sp := parseTag(sf, SharePointTag)
		gr := parseTag(sf, GraphTag)
		if sp.skip && (gr.skip || !gr.present) {
			continue
		}

		info := &FieldInfo{
			Name:  sf.Name,
			Type:  sf.Type,
			Index: sf.Index,
		}
		if !sp.skip {
			info.SharePoint = sp.name
			if info.SharePoint == "" {
				info.SharePoint = sf.Name
			}
		}
		if gr.present && !gr.skip {
			info.Graph = gr.name
			if info.Graph == "" {
				info.Graph = lowerFirst(sf.Name)
			}
		}

		info.Key = sp.has(optionKey) || gr.has(optionKey)
		info.Add = sp.has(optionAdd)
		info.Kind = kindOf(sf.Type)
		if sp.has(optionCollection) || gr.has(optionCollection) {
			info.Kind = Collection
		}

		fields = append(fields, info)
	}

	return fields
}

func kindOf(t reflect.Type) Kind {
	if t.Implements(collectionMarkerType) || reflect.PointerTo(t).Implements(collectionMarkerType) {
		return Collection
	}

	base := t
	if base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	if base == timeType {
		return Primitive
	}
	if reflect.PointerTo(base).Implements(textUnmarshalerType) {
		switch base.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.String:
			return Enum
		}
		return Primitive
	}
	if base.Kind() == reflect.Struct {
		return Object
	}
	return Primitive
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
