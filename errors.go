package spmodel

import (
	"fmt"
	"net/http"

	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// MetadataError reports a problem with a model's declared metadata or with
// binding a URL template against a model instance. It is always raised before
// any network call is made.
type MetadataError struct {
	Type   string
	Field  string
	Reason string
}

func (e *MetadataError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("metadata error for type '%s' field '%s': %s", e.Type, e.Field, e.Reason)
	}
	return fmt.Sprintf("metadata error for type '%s': %s", e.Type, e.Reason)
}

// NewMetadataError returns a MetadataError with a formatted reason.
func NewMetadataError(typeName, field, reason string, args ...interface{}) *MetadataError {
	return &MetadataError{Type: typeName, Field: field, Reason: fmt.Sprintf(reason, args...)}
}

// IsMetadataError reports whether err, or any error it wraps, is a
// MetadataError.
func IsMetadataError(err error) bool {
	var target *MetadataError
	return errors.As(err, &target)
}

// TransportError reports a network failure or a non-success response from the
// remote service. It is surfaced unchanged to the caller of the operation.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s %s: server returned %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s %s: server returned %d %s (%s)", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	default:
		return fmt.Sprintf("%s %s: server returned %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err, or any error it wraps, is a
// TransportError.
func IsTransportError(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// StatusCode returns the HTTP status carried by a TransportError in err's
// chain, or 0.
func StatusCode(err error) int {
	var target *TransportError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}

// MappingWarning describes a JSON property that could not be mapped onto a
// model field. Warnings are only ever logged.
type MappingWarning struct {
	Type   string
	Field  string
	Reason string
}

// Fields renders the warning as a structured log message.
func (w MappingWarning) Fields() message.Fields {
	return message.Fields{
		"message": "could not map field from JSON",
		"type":    w.Type,
		"field":   w.Field,
		"reason":  w.Reason,
	}
}
