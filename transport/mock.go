package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/pkg/errors"
)

// MockResponse is a canned reply of the Mock transport.
type MockResponse struct {
	StatusCode int
	Body       string
	Err        error
}

// MockBatch records one batch sent through the Mock transport.
type MockBatch struct {
	Type     apimodels.APIType
	Requests []*apimodels.Request
}

// Mock mocks Transport for testing. Replies are keyed by method and path;
// unknown requests get a 404.
type Mock struct {
	// mock behavior
	SendShouldFail  bool
	BatchShouldFail bool
	responses       map[string]MockResponse

	// data collected by mocked methods
	requests []*apimodels.Request
	batches  []MockBatch
	mu       sync.Mutex
}

// NewMock returns a Transport for testing.
func NewMock() *Mock {
	return &Mock{responses: map[string]MockResponse{}}
}

func mockKey(method, path string) string {
	return method + " " + strings.TrimPrefix(path, "/")
}

// On registers a reply for a request.
func (m *Mock) On(method, path string, status int, body string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[mockKey(method, path)] = MockResponse{StatusCode: status, Body: body}
	return m
}

// OnError registers a network failure for a request.
func (m *Mock) OnError(method, path string, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[mockKey(method, path)] = MockResponse{Err: err}
	return m
}

// Requests returns every request sent directly, in order.
func (m *Mock) Requests() []*apimodels.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*apimodels.Request(nil), m.requests...)
}

// Batches returns every batch sent, in order.
func (m *Mock) Batches() []MockBatch {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]MockBatch(nil), m.batches...)
}

// Reset forgets the collected requests and batches.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = nil
	m.batches = nil
}

func (m *Mock) reply(req *apimodels.Request) (*apimodels.Response, error) {
	resp, ok := m.responses[mockKey(req.Method, req.Path)]
	if !ok {
		return nil, &spmodel.TransportError{Method: req.Method, URL: req.Path, StatusCode: http.StatusNotFound}
	}
	if resp.Err != nil {
		return nil, &spmodel.TransportError{Method: req.Method, URL: req.Path, Err: resp.Err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &spmodel.TransportError{Method: req.Method, URL: req.Path, StatusCode: resp.StatusCode, Body: resp.Body}
	}

	return &apimodels.Response{
		StatusCode: resp.StatusCode,
		Headers:    http.Header{spmodel.ContentTypeHeader: []string{spmodel.ContentTypeJSON}},
		Body:       []byte(resp.Body),
	}, nil
}

func (m *Mock) Send(ctx context.Context, req *apimodels.Request) (*apimodels.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, &spmodel.TransportError{Method: req.Method, URL: req.Path, Err: err}
	}
	if m.SendShouldFail {
		return nil, &spmodel.TransportError{Method: req.Method, URL: req.Path, Err: errors.New("send should fail")}
	}

	return m.reply(req)
}

func (m *Mock) SendBatch(ctx context.Context, apiType apimodels.APIType, reqs []*apimodels.Request) ([]apimodels.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, MockBatch{Type: apiType, Requests: reqs})
	if err := ctx.Err(); err != nil {
		return nil, &spmodel.TransportError{Method: http.MethodPost, URL: string(apiType) + " batch", Err: err}
	}
	if m.BatchShouldFail {
		return nil, &spmodel.TransportError{Method: http.MethodPost, URL: string(apiType) + " batch", Err: errors.New("batch should fail")}
	}

	results := make([]apimodels.BatchResult, 0, len(reqs))
	for _, req := range reqs {
		resp, err := m.reply(req)
		results = append(results, apimodels.BatchResult{Response: resp, Err: err})
	}

	return results, nil
}
