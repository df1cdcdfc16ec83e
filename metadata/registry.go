// Package metadata describes how model types map onto the remote service:
// canonical type names, URL templates per protocol and the mapping between
// local fields and remote JSON properties.
package metadata

import (
	"reflect"
	"sync"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// SharePointInfo holds the SharePoint REST metadata of a type. Templates are
// relative to the site URL.
type SharePointInfo struct {
	// Type is the canonical type tag written into request bodies, e.g. SP.List.
	Type string
	// URI addresses a single instance.
	URI string
	// Update addresses a single instance for updates. URI is used when empty.
	Update string
	// Collection addresses the collection instances are read from and added to.
	Collection string
}

// GraphInfo holds the graph metadata of a type. Templates are relative to the
// versioned graph root.
type GraphInfo struct {
	Type       string
	Get        string
	Collection string
	// ReadOnly keeps updates and deletes on SharePoint REST even when graph
	// is preferred for reads.
	ReadOnly bool
}

// TypeInfo is the metadata declared for one model type.
type TypeInfo struct {
	SharePoint SharePointInfo
	Graph      GraphInfo
	// Tokens declares computed template tokens as aliases of fields, e.g.
	// GraphId -> Id.
	Tokens map[string]string
}

// EntityInfo is the resolved metadata of a registered type.
type EntityInfo struct {
	TypeInfo
	GoType reflect.Type
	Fields []*FieldInfo

	byName       map[string]*FieldInfo
	bySharePoint map[string]*FieldInfo
	byGraph      map[string]*FieldInfo
	key          *FieldInfo
}

// Name returns the canonical remote type name.
func (e *EntityInfo) Name() string {
	if e.SharePoint.Type != "" {
		return e.SharePoint.Type
	}
	if e.Graph.Type != "" {
		return e.Graph.Type
	}
	return e.GoType.Name()
}

// Field returns the field with the given Go name.
func (e *EntityInfo) Field(name string) (*FieldInfo, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// FieldByRemote returns the field mapped to the remote property name on the
// given protocol.
func (e *EntityInfo) FieldByRemote(apiType apimodels.APIType, remote string) (*FieldInfo, bool) {
	var f *FieldInfo
	var ok bool
	if apiType == apimodels.Graph {
		f, ok = e.byGraph[remote]
	} else {
		f, ok = e.bySharePoint[remote]
	}
	return f, ok
}

// Key returns the identity field, or nil if the type declares none.
func (e *EntityInfo) Key() *FieldInfo { return e.key }

// HasProtocol reports whether the type can be addressed on the protocol.
func (e *EntityInfo) HasProtocol(apiType apimodels.APIType) bool {
	if apiType == apimodels.Graph {
		return e.Graph.Get != "" || e.Graph.Collection != ""
	}
	return e.SharePoint.URI != "" || e.SharePoint.Collection != ""
}

// Registry holds the metadata of every model type.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]*EntityInfo
}

func NewRegistry() *Registry {
	return &Registry{types: map[reflect.Type]*EntityInfo{}}
}

var defaultRegistry = NewRegistry()

// Register declares the metadata of the sample's type in the default registry.
func Register(sample any, info TypeInfo) error { return defaultRegistry.Register(sample, info) }

// MustRegister is Register for package initialization.
func MustRegister(sample any, info TypeInfo) {
	if err := Register(sample, info); err != nil {
		panic(err)
	}
}

// Resolve returns the metadata of the instance's type from the default
// registry.
func Resolve(instance any) (*EntityInfo, error) { return defaultRegistry.Resolve(instance) }

// ResolveType returns the metadata of a type from the default registry.
func ResolveType(t reflect.Type) (*EntityInfo, error) { return defaultRegistry.ResolveType(t) }

func (r *Registry) Register(sample any, info TypeInfo) error {
	t := structType(reflect.TypeOf(sample))
	if t == nil {
		return errors.Errorf("cannot register metadata for %T: not a struct", sample)
	}

	fields := parseFields(t)

	entity := &EntityInfo{
		TypeInfo:     info,
		GoType:       t,
		Fields:       fields,
		byName:       map[string]*FieldInfo{},
		bySharePoint: map[string]*FieldInfo{},
		byGraph:      map[string]*FieldInfo{},
	}

	catcher := grip.NewBasicCatcher()
	for _, f := range fields {
		entity.byName[f.Name] = f
		if f.SharePoint != "" {
			_, dup := entity.bySharePoint[f.SharePoint]
			catcher.ErrorfWhen(dup, "duplicate SharePoint property '%s'", f.SharePoint)
			entity.bySharePoint[f.SharePoint] = f
		}
		if f.Graph != "" {
			_, dup := entity.byGraph[f.Graph]
			catcher.ErrorfWhen(dup, "duplicate graph property '%s'", f.Graph)
			entity.byGraph[f.Graph] = f
		}
		if f.Key {
			catcher.ErrorfWhen(entity.key != nil, "type declares more than one key field")
			entity.key = f
		}
	}
	for token, field := range info.Tokens {
		_, ok := entity.byName[field]
		catcher.ErrorfWhen(!ok, "token '%s' refers to unknown field '%s'", token, field)
	}
	catcher.NewWhen(info.SharePoint.URI == "" && info.SharePoint.Collection == "" && info.Graph.Get == "" && info.Graph.Collection == "",
		"type declares no URL templates")
	if catcher.HasErrors() {
		return spmodel.NewMetadataError(entity.Name(), "", "%s", catcher.Resolve().Error())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t] = entity

	return nil
}

func (r *Registry) Resolve(instance any) (*EntityInfo, error) {
	if instance == nil {
		return nil, spmodel.NewMetadataError("<nil>", "", "cannot resolve metadata of a nil instance")
	}
	return r.ResolveType(reflect.TypeOf(instance))
}

func (r *Registry) ResolveType(t reflect.Type) (*EntityInfo, error) {
	st := structType(t)
	if st == nil {
		return nil, spmodel.NewMetadataError(typeName(t), "", "model types must be structs")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.types[st]
	if !ok {
		return nil, spmodel.NewMetadataError(st.String(), "", "type is not registered")
	}
	return entity, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

func structType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return t
}
