// Package mapping coerces JSON values onto typed model fields.
package mapping

import (
	"reflect"

	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/mongodb/grip"
	"github.com/tidwall/gjson"
)

// FromJSON is the context handed to a custom field resolver.
type FromJSON struct {
	// FieldName is the Go name of the target field.
	FieldName string
	// TargetType is the Go type of the target field.
	TargetType reflect.Type
	// JSONElement is the raw JSON property value.
	JSONElement gjson.Result
	// APIType is the protocol the response was received on.
	APIType apimodels.APIType
	Log     grip.Journaler
}

// Resolver resolves a field the generic mapping cannot interpret. It returns
// false to fall back to the generic mapping. The returned value must be
// assignable to TargetType.
type Resolver func(FromJSON) (any, bool)

// Chain returns a resolver trying each resolver in order.
func Chain(resolvers ...Resolver) Resolver {
	return func(in FromJSON) (any, bool) {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			if v, ok := r(in); ok {
				return v, true
			}
		}
		return nil, false
	}
}
