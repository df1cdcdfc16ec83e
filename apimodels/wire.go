package apimodels

import (
	"net/http"

	"github.com/tidwall/gjson"
)

// Request is a single HTTP request handed to the transport. Path is relative
// to the root of the protocol named by Type.
type Request struct {
	Type    APIType
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Response is a successful response received from the transport.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON returns the parsed response body. An empty body parses as a
// non-existent result.
func (r *Response) JSON() gjson.Result {
	if r == nil || len(r.Body) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(r.Body)
}

// Empty reports whether the response carries no payload.
func (r *Response) Empty() bool {
	return r == nil || len(r.Body) == 0 || r.StatusCode == http.StatusNoContent
}

// BatchResult is the outcome of one request sent inside a batch. Exactly one
// of Response and Err is set.
type BatchResult struct {
	Response *Response
	Err      error
}
