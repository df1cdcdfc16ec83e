// Package transport sends requests to SharePoint REST and Microsoft Graph.
package transport

import (
	"context"

	"github.com/evergreen-ci/spmodel/apimodels"
)

// Transport sends requests to the remote service. Implementations return a
// *spmodel.TransportError for network failures and non-success responses.
type Transport interface {
	// Send sends a single request.
	Send(context.Context, *apimodels.Request) (*apimodels.Response, error)
	// SendBatch sends requests of one protocol as a single batch round trip.
	// The results are in request order. The error is only set when the batch
	// as a whole could not be sent or parsed.
	SendBatch(context.Context, apimodels.APIType, []*apimodels.Request) ([]apimodels.BatchResult, error)
}
