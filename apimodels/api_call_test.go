package apimodels

import (
	"net/http"
	"testing"

	"github.com/evergreen-ci/spmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPICallValidate(t *testing.T) {
	testCases := []struct {
		desc        string
		call        APICall
		errContains string
		metadata    bool
	}{
		{
			desc:        "ErrorIfNoType",
			call:        APICall{Method: http.MethodGet, Request: "_api/web"},
			errContains: "invalid API type",
		},
		{
			desc:        "ErrorIfBadMethod",
			call:        APICall{Type: SPORest, Method: "FETCH", Request: "_api/web"},
			errContains: "invalid HTTP method",
		},
		{
			desc:        "ErrorIfNoRequest",
			call:        APICall{Type: Graph, Method: http.MethodGet, Request: " "},
			errContains: "must not be empty",
		},
		{
			desc:        "ErrorIfUnresolvedPlaceholder",
			call:        APICall{Type: SPORest, Method: http.MethodPost, Request: "_api/Web/Lists(guid'{Id}')/Recycle"},
			errContains: "{Id}",
			metadata:    true,
		},
		{
			desc: "SuccessWithResolvedRequest",
			call: APICall{Type: SPORest, Method: http.MethodPost, Request: "_api/Web/Lists(guid'5fd0b87d-1e0f-4bd3-9c0f-3e7c5b0b6a11')/Recycle"},
		},
		{
			desc: "SuccessWithODataQuery",
			call: APICall{Type: SPORest, Method: http.MethodGet, Request: "_api/web/lists?$select=Id,Title"},
		},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			err := tC.call.Validate()

			if tC.errContains != "" {
				assert.ErrorContains(t, err, tC.errContains)
				assert.Equal(t, tC.metadata, spmodel.IsMetadataError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAPICallWithHeaderCopies(t *testing.T) {
	base := NewAPICall(SPORest, http.MethodPost, "_api/web/lists").WithHeader(spmodel.IfMatchHeader, "*")
	merge := base.WithHeader(spmodel.HTTPMethodHeader, spmodel.MethodMerge)

	assert.Len(t, base.Headers, 1)
	assert.Len(t, merge.Headers, 2)
	assert.Equal(t, spmodel.MethodMerge, merge.Headers[spmodel.HTTPMethodHeader])
}

func TestAPICallToRequest(t *testing.T) {
	t.Run("RESTUsesVerboseJSON", func(t *testing.T) {
		req := NewAPICall(SPORest, http.MethodPost, "/_api/web/lists").WithBody(`{"Title":"Tasks"}`).ToRequest()

		assert.Equal(t, "_api/web/lists", req.Path)
		assert.Equal(t, spmodel.ContentTypeVerbose, req.Headers[spmodel.AcceptHeader])
		assert.Equal(t, spmodel.ContentTypeVerbose, req.Headers[spmodel.ContentTypeHeader])
		assert.Equal(t, `{"Title":"Tasks"}`, string(req.Body))
	})
	t.Run("GraphUsesPlainJSON", func(t *testing.T) {
		req := NewAPICall(Graph, http.MethodGet, "sites/contoso.sharepoint.com:/sites/team").ToRequest()

		assert.Equal(t, spmodel.ContentTypeJSON, req.Headers[spmodel.AcceptHeader])
		assert.NotContains(t, req.Headers, spmodel.ContentTypeHeader)
		assert.Nil(t, req.Body)
	})
	t.Run("CallHeadersOverrideDefaults", func(t *testing.T) {
		req := NewAPICall(SPORest, http.MethodGet, "_api/web").WithHeader(spmodel.AcceptHeader, spmodel.ContentTypeJSON).ToRequest()

		assert.Equal(t, spmodel.ContentTypeJSON, req.Headers[spmodel.AcceptHeader])
	})
}

func TestResponseJSON(t *testing.T) {
	var nilResp *Response
	assert.True(t, nilResp.Empty())
	assert.False(t, nilResp.JSON().Exists())

	resp := &Response{StatusCode: http.StatusOK, Body: []byte(`{"d":{"Recycle":"5fd0b87d-1e0f-4bd3-9c0f-3e7c5b0b6a11"}}`)}
	require.False(t, resp.Empty())
	assert.Equal(t, "5fd0b87d-1e0f-4bd3-9c0f-3e7c5b0b6a11", resp.JSON().Get("d.Recycle").String())

	assert.True(t, (&Response{StatusCode: http.StatusNoContent}).Empty())
}
