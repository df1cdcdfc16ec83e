package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	crlf              = "\r\n"
	multipartMixed    = "multipart/mixed"
	batchBoundary     = "batch_"
	changesetBoundary = "changeset_"
)

// restBatch encodes SharePoint REST requests as an OData multipart/mixed
// batch. Reads are sent as plain parts; every write is wrapped in its own
// changeset so that one failing write does not roll back the others.
type restBatch struct {
	siteURL string
	newID   func() string
}

func newRESTBatch(siteURL string) *restBatch {
	return &restBatch{siteURL: siteURL, newID: func() string { return uuid.New().String() }}
}

func (b *restBatch) encode(reqs []*apimodels.Request) (*apimodels.Request, error) {
	boundary := batchBoundary + b.newID()

	var body bytes.Buffer
	for _, req := range reqs {
		body.WriteString("--" + boundary + crlf)
		if req.Method == http.MethodGet {
			if err := b.writeOperation(&body, req); err != nil {
				return nil, err
			}
			continue
		}

		changeset := changesetBoundary + b.newID()
		body.WriteString(fmt.Sprintf("%s: %s; boundary=\"%s\"%s%s", spmodel.ContentTypeHeader, multipartMixed, changeset, crlf, crlf))
		body.WriteString("--" + changeset + crlf)
		if err := b.writeOperation(&body, req); err != nil {
			return nil, err
		}
		body.WriteString("--" + changeset + "--" + crlf + crlf)
	}
	body.WriteString("--" + boundary + "--" + crlf)

	return &apimodels.Request{
		Type:   apimodels.SPORest,
		Method: http.MethodPost,
		Path:   spmodel.RESTBatchPath,
		Headers: map[string]string{
			spmodel.ContentTypeHeader: fmt.Sprintf("%s; boundary=%s", multipartMixed, boundary),
			spmodel.AcceptHeader:      spmodel.ContentTypeVerbose,
		},
		Body: body.Bytes(),
	}, nil
}

func (b *restBatch) writeOperation(w *bytes.Buffer, req *apimodels.Request) error {
	if strings.ContainsAny(req.Path, "\r\n") {
		return errors.Errorf("request path '%s' contains line breaks", req.Path)
	}

	w.WriteString(fmt.Sprintf("%s: %s%s", spmodel.ContentTypeHeader, spmodel.ContentTypeHTTP, crlf))
	w.WriteString("Content-Transfer-Encoding: binary" + crlf + crlf)
	w.WriteString(fmt.Sprintf("%s %s/%s HTTP/1.1%s", req.Method, b.siteURL, strings.TrimPrefix(req.Path, "/"), crlf))

	names := make([]string, 0, len(req.Headers))
	for name := range req.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w.WriteString(fmt.Sprintf("%s: %s%s", name, req.Headers[name], crlf))
	}
	w.WriteString(crlf)
	if len(req.Body) > 0 {
		w.Write(req.Body)
		w.WriteString(crlf)
	}
	w.WriteString(crlf)

	return nil
}

func (b *restBatch) decode(resp *apimodels.Response, reqs []*apimodels.Request) ([]apimodels.BatchResult, error) {
	mediaType, params, err := mime.ParseMediaType(resp.Headers.Get(spmodel.ContentTypeHeader))
	if err != nil {
		return nil, errors.Wrap(err, "parsing batch response content type")
	}
	if !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return nil, errors.Errorf("batch response has content type '%s', not multipart", mediaType)
	}

	var results []apimodels.BatchResult
	if err = readParts(bytes.NewReader(resp.Body), params["boundary"], &results); err != nil {
		return nil, err
	}
	if len(results) != len(reqs) {
		return nil, errors.Errorf("batch response has %d parts for %d requests", len(results), len(reqs))
	}

	return results, nil
}

func readParts(r io.Reader, boundary string, results *[]apimodels.BatchResult) error {
	reader := multipart.NewReader(r, boundary)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading batch part")
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get(spmodel.ContentTypeHeader))
		if err != nil {
			return errors.Wrap(err, "parsing batch part content type")
		}
		if strings.HasPrefix(mediaType, "multipart/") {
			if err = readParts(part, params["boundary"], results); err != nil {
				return err
			}
			continue
		}

		httpResp, err := http.ReadResponse(bufio.NewReader(part), nil)
		if err != nil {
			return errors.Wrap(err, "reading batch part response")
		}
		body, err := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if err != nil {
			return errors.Wrap(err, "reading batch part body")
		}

		*results = append(*results, apimodels.BatchResult{Response: &apimodels.Response{
			StatusCode: httpResp.StatusCode,
			Headers:    httpResp.Header,
			Body:       bytes.TrimSpace(body),
		}})
	}
}
