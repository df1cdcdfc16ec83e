package model

import (
	"reflect"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/metadata"
)

// Model is implemented by every model type through an embedded Entity.
type Model interface {
	entity() *Entity
}

// Collection is implemented by collections of model instances.
type Collection interface {
	// Attach adds an instance to the collection.
	Attach(Model) error
	// Remove removes an instance from the collection and reports whether it
	// was present.
	Remove(Model) bool
	// ParentModel returns the instance owning the collection.
	ParentModel() Model
}

// Entity is the state shared by all model instances: the client, the parent
// the instance belongs to, its hooks and the snapshot used to track changes.
// Model types embed Entity and call Init from their constructor.
type Entity struct {
	Hooks Hooks

	self     Model
	client   *Client
	parent   any
	snapshot map[string]any
	loaded   map[string]bool
}

func (e *Entity) entity() *Entity { return e }

// Init binds the instance to its client and parent. The parent is either the
// owning model instance or the collection holding the instance.
func (e *Entity) Init(self Model, client *Client, parent any) {
	e.self = self
	e.client = client
	e.parent = parent
	e.snapshot = map[string]any{}
	e.loaded = map[string]bool{}
}

// Client returns the client the instance is bound to.
func (e *Entity) Client() *Client { return e.client }

// Parent returns the model instance or collection the instance belongs to.
func (e *Entity) Parent() any { return e.parent }

// ParentCollection returns the collection holding the instance, or nil.
func (e *Entity) ParentCollection() Collection {
	c, _ := e.parent.(Collection)
	return c
}

// ParentModel returns the closest model instance above this one, skipping
// collections, or nil.
func (e *Entity) ParentModel() Model {
	switch p := e.parent.(type) {
	case Collection:
		return p.ParentModel()
	case Model:
		return p
	default:
		return nil
	}
}

// IsLoaded reports whether the field has been mapped from a response.
func (e *Entity) IsLoaded(field string) bool { return e.loaded[field] }

// Metadata returns the metadata of the instance's type.
func (e *Entity) Metadata() (*metadata.EntityInfo, error) {
	if e.self == nil {
		return nil, spmodel.NewMetadataError("<uninitialized>", "", "model instance was not initialized")
	}
	return metadata.Resolve(e.self)
}

func (e *Entity) value() reflect.Value {
	return reflect.ValueOf(e.self).Elem()
}

func (e *Entity) fieldValue(f *metadata.FieldInfo) reflect.Value {
	return e.value().FieldByIndex(f.Index)
}

func (e *Entity) typeName() string {
	info, err := e.Metadata()
	if err != nil {
		return reflect.TypeOf(e.self).String()
	}
	return info.Name()
}

// keyValue returns the identity of the instance, or nil if the type has no key
// or the key is not set.
func (e *Entity) keyValue() any {
	info, err := e.Metadata()
	if err != nil || info.Key() == nil {
		return nil
	}
	v := e.fieldValue(info.Key())
	if v.IsZero() {
		return nil
	}
	return v.Interface()
}

// detach removes the instance from the collection holding it.
func (e *Entity) detach() bool {
	if c := e.ParentCollection(); c != nil {
		return c.Remove(e.self)
	}
	return false
}

// takeSnapshot records the current values of the given fields as the state
// known to the service. Fields not named keep their earlier snapshot.
func (e *Entity) takeSnapshot(info *metadata.EntityInfo, fields ...string) {
	for _, name := range fields {
		f, ok := info.Field(name)
		if !ok || f.Kind == metadata.Collection {
			continue
		}
		e.snapshot[name] = copyValue(e.fieldValue(f))
	}
}

func copyValue(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return v.Interface()
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(out, v)
		return out.Interface()
	case reflect.Map:
		if v.IsNil() {
			return v.Interface()
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface()
	default:
		return v.Interface()
	}
}

// TokenName implements metadata.TokenSource.
func (e *Entity) TokenName() string { return e.typeName() }

// TokenValue implements metadata.TokenSource.
func (e *Entity) TokenValue(name string) (any, bool) {
	info, err := e.Metadata()
	if err != nil {
		return nil, false
	}
	return info.FieldToken(e.value(), name)
}

// TokenParent implements metadata.TokenSource.
func (e *Entity) TokenParent() metadata.TokenSource {
	parent := e.ParentModel()
	if parent == nil || parent.entity().self == nil {
		return nil
	}
	return parent.entity()
}
