package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

type graphBatchRequest struct {
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// graphBatch encodes graph requests as a JSON $batch. Request ids are the
// 1-based position of the request.
type graphBatch struct{}

func newGraphBatch() *graphBatch { return &graphBatch{} }

func (b *graphBatch) encode(reqs []*apimodels.Request) (*apimodels.Request, error) {
	items := make([]graphBatchRequest, 0, len(reqs))
	for i, req := range reqs {
		item := graphBatchRequest{
			ID:      strconv.Itoa(i + 1),
			Method:  req.Method,
			URL:     "/" + strings.TrimLeft(req.Path, "/"),
			Headers: req.Headers,
		}
		if len(req.Body) > 0 {
			if !json.Valid(req.Body) {
				return nil, errors.Errorf("body of request %d is not valid JSON", i+1)
			}
			item.Body = req.Body
		}
		items = append(items, item)
	}

	body, err := json.Marshal(map[string]any{"requests": items})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling batch")
	}

	return &apimodels.Request{
		Type:   apimodels.Graph,
		Method: http.MethodPost,
		Path:   spmodel.GraphBatchPath,
		Headers: map[string]string{
			spmodel.ContentTypeHeader: spmodel.ContentTypeJSON,
			spmodel.AcceptHeader:      spmodel.ContentTypeJSON,
		},
		Body: body,
	}, nil
}

func (b *graphBatch) decode(resp *apimodels.Response, reqs []*apimodels.Request) ([]apimodels.BatchResult, error) {
	responses := resp.JSON().Get("responses")
	if !responses.IsArray() {
		return nil, errors.New("batch response has no responses array")
	}

	results := make([]apimodels.BatchResult, len(reqs))
	seen := make([]bool, len(reqs))
	var parseErr error
	responses.ForEach(func(_, item gjson.Result) bool {
		id, err := strconv.Atoi(item.Get("id").String())
		if err != nil || id < 1 || id > len(reqs) {
			parseErr = errors.Errorf("batch response has unknown request id '%s'", item.Get("id").String())
			return false
		}

		headers := http.Header{}
		item.Get("headers").ForEach(func(k, v gjson.Result) bool {
			headers.Set(k.String(), v.String())
			return true
		})
		var body []byte
		if raw := item.Get("body"); raw.Exists() {
			body = []byte(raw.Raw)
		}

		results[id-1] = apimodels.BatchResult{Response: &apimodels.Response{
			StatusCode: int(item.Get("status").Int()),
			Headers:    headers,
			Body:       body,
		}}
		seen[id-1] = true
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	for i, ok := range seen {
		if !ok {
			return nil, errors.Errorf("batch response is missing request id %d", i+1)
		}
	}

	return results, nil
}
