package model

import (
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/mapping"
	"github.com/tidwall/gjson"
)

// HookKind names a customization point of a model instance.
type HookKind int

const (
	AddOverrideHook HookKind = iota
	DeleteOverrideHook
	MapFieldHook
	PostMappingHook
	ValidateUpdateHook
)

func (k HookKind) String() string {
	switch k {
	case AddOverrideHook:
		return "add-override"
	case DeleteOverrideHook:
		return "delete-override"
	case MapFieldHook:
		return "map-field"
	case PostMappingHook:
		return "post-mapping"
	case ValidateUpdateHook:
		return "validate-update"
	default:
		return "unknown"
	}
}

// CallOverride replaces the default request built for an operation. It
// receives the default call, which is the zero value when no default could be
// built, and its result is used as is.
type CallOverride func(defaultCall apimodels.APICall) (apimodels.APICall, error)

// Hooks are the per-instance customization points. A nil hook means the
// generic behavior is used.
type Hooks struct {
	AddOverride    CallOverride
	DeleteOverride CallOverride
	// MapField resolves fields the generic mapping cannot interpret.
	MapField mapping.Resolver
	// PostMapping runs after every field of a response has been mapped and
	// receives the JSON object the instance was mapped from.
	PostMapping func(raw gjson.Result)
	// ValidateUpdate runs for every changed field before an update is
	// serialized.
	ValidateUpdate func(*FieldUpdateRequest)
}

// Registered reports whether a hook of the kind is set.
func (h *Hooks) Registered(kind HookKind) bool {
	switch kind {
	case AddOverrideHook:
		return h.AddOverride != nil
	case DeleteOverrideHook:
		return h.DeleteOverride != nil
	case MapFieldHook:
		return h.MapField != nil
	case PostMappingHook:
		return h.PostMapping != nil
	case ValidateUpdateHook:
		return h.ValidateUpdate != nil
	default:
		return false
	}
}

// FieldUpdateRequest is one changed field handed to a ValidateUpdate hook.
type FieldUpdateRequest struct {
	// FieldName is the Go name of the field.
	FieldName string
	value     any
	cancelled bool
}

// Value returns the value that will be sent.
func (r *FieldUpdateRequest) Value() any { return r.value }

// SetValue substitutes the value that will be sent.
func (r *FieldUpdateRequest) SetValue(v any) { r.value = v }

// CancelUpdate drops the field from the update. Other fields are still sent.
func (r *FieldUpdateRequest) CancelUpdate() { r.cancelled = true }

// Cancelled reports whether the update of the field was cancelled.
func (r *FieldUpdateRequest) Cancelled() bool { return r.cancelled }
