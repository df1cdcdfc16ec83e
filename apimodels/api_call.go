package apimodels

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/pkg/errors"
)

// APIType is the protocol tag of a request. Every APICall targets exactly one
// of the two supported wire protocols.
type APIType string

const (
	// SPORest is the SharePoint REST (_api) surface, spoken in OData verbose JSON.
	SPORest APIType = "SPORest"
	// Graph is the Microsoft Graph surface.
	Graph APIType = "Graph"
)

func (t APIType) Validate() error {
	switch t {
	case SPORest, Graph:
		return nil
	default:
		return errors.Errorf("invalid API type '%s'", t)
	}
}

var unresolvedToken = regexp.MustCompile(`\{[A-Za-z][A-Za-z0-9_.]*\}`)

// APICall describes one operation against the remote service.
type APICall struct {
	Type APIType
	// Method is the HTTP verb sent on the wire.
	Method string
	// Request is the URL path (and query) relative to the protocol root:
	// the site URL for SPORest, the versioned graph endpoint for Graph.
	// Builders may leave {token} placeholders in it until the call is resolved.
	Request  string
	JSONBody string
	// ResultPath is a dotted property path, under the protocol envelope, at
	// which the response payload lives. A response lacking it is an empty
	// result.
	ResultPath string
	// ReceivingProperty names the model collection field the response's
	// result set is mapped into.
	ReceivingProperty string
	// RemovesEntity marks calls after which the model instance is detached
	// from its parent collection. Calls with a ResultPath only detach when
	// the response carries that path.
	RemovesEntity bool
	Headers       map[string]string
}

// NewAPICall returns a call of the given protocol and verb.
func NewAPICall(apiType APIType, method, request string) APICall {
	return APICall{Type: apiType, Method: method, Request: request}
}

// WithBody returns a copy of the call carrying the body.
func (c APICall) WithBody(body string) APICall {
	c.JSONBody = body
	return c
}

// WithHeader returns a copy of the call with an additional header.
func (c APICall) WithHeader(name, value string) APICall {
	headers := make(map[string]string, len(c.Headers)+1)
	for k, v := range c.Headers {
		headers[k] = v
	}
	headers[name] = value
	c.Headers = headers
	return c
}

// Unresolved returns the placeholders still present in the request URL.
func (c APICall) Unresolved() []string {
	return unresolvedToken.FindAllString(c.Request, -1)
}

// Validate checks that the call is complete enough to be dispatched.
func (c APICall) Validate() error {
	if err := c.Type.Validate(); err != nil {
		return err
	}
	switch c.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return errors.Errorf("invalid HTTP method '%s'", c.Method)
	}
	if strings.TrimSpace(c.Request) == "" {
		return errors.New("request URL must not be empty")
	}
	if tokens := c.Unresolved(); len(tokens) > 0 {
		return spmodel.NewMetadataError(string(c.Type), "", "request '%s' has unresolved placeholders %s", c.Request, strings.Join(tokens, ", "))
	}
	return nil
}

// ToRequest converts the call into a transport request with the protocol's
// default headers. Call headers win over defaults.
func (c APICall) ToRequest() *Request {
	headers := map[string]string{}
	switch c.Type {
	case SPORest:
		headers[spmodel.AcceptHeader] = spmodel.ContentTypeVerbose
		if c.JSONBody != "" {
			headers[spmodel.ContentTypeHeader] = spmodel.ContentTypeVerbose
		}
	case Graph:
		headers[spmodel.AcceptHeader] = spmodel.ContentTypeJSON
		if c.JSONBody != "" {
			headers[spmodel.ContentTypeHeader] = spmodel.ContentTypeJSON
		}
	}
	for k, v := range c.Headers {
		headers[k] = v
	}

	var body []byte
	if c.JSONBody != "" {
		body = []byte(c.JSONBody)
	}

	return &Request{
		Type:    c.Type,
		Method:  c.Method,
		Path:    strings.TrimPrefix(c.Request, "/"),
		Headers: headers,
		Body:    body,
	}
}
