package model

import (
	"context"

	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Batch collects requests to be sent together. Requests are resolved when
// they are queued and sent when the batch is executed.
type Batch struct {
	client   *Client
	requests []*BatchRequest
	executed bool
}

// BatchRequest is one queued request and, once the batch is executed, its
// outcome.
type BatchRequest struct {
	Call     apimodels.APICall
	Response *apimodels.Response
	// Err is the failure of this request alone.
	Err error
	// Result holds the value produced by operations returning one, such as
	// the identifier of a recycled entity.
	Result any

	entity    string
	queued    bool
	done      bool
	onSuccess func(*apimodels.Response) error
}

// Done reports whether the request has been processed.
func (r *BatchRequest) Done() bool { return r.done }

// NewBatch returns an empty batch bound to the client.
func (c *Client) NewBatch() *Batch {
	return &Batch{client: c}
}

// Len returns the number of queued requests.
func (b *Batch) Len() int { return len(b.requests) }

// Requests returns the queued requests in submission order.
func (b *Batch) Requests() []*BatchRequest { return append([]*BatchRequest(nil), b.requests...) }

// Executed reports whether the batch has been executed.
func (b *Batch) Executed() bool { return b.executed }

func (b *Batch) add(entity string, call apimodels.APICall, err error, onSuccess func(*apimodels.Response) error) *BatchRequest {
	r := &BatchRequest{
		Call:      call,
		Err:       err,
		entity:    entity,
		queued:    err == nil,
		onSuccess: onSuccess,
	}
	if b.executed && err == nil {
		r.Err = errors.New("batch has already been executed")
		r.queued = false
	}
	b.requests = append(b.requests, r)
	return r
}

// AddFailed records a request that could not be built. It is reported with
// the batch's other outcomes and never sent.
func (b *Batch) AddFailed(call apimodels.APICall, err error) *BatchRequest {
	return b.add("", call, err, nil)
}

// Execute sends the batch. Requests are grouped by protocol, each group going
// out as batch requests of at most the configured size. Groups are sent one
// after another in the order their first request was queued, so requests of
// different protocols do not reach the service in submission order; a batch
// that mixes protocols must not rely on one request seeing another's effect.
// Responses are post-processed in submission order. Every request records its
// own outcome; the returned error aggregates the failures.
func (c *Client) Execute(ctx context.Context, b *Batch) error {
	if b.executed {
		return errors.New("batch has already been executed")
	}
	b.executed = true

	ctx, span := tracer.Start(ctx, "Execute", trace.WithAttributes(
		attribute.Int(batchSizeAttribute, len(b.requests)),
	))

	var order []apimodels.APIType
	groups := map[apimodels.APIType][]*BatchRequest{}
	for _, r := range b.requests {
		if !r.queued {
			continue
		}
		if _, ok := groups[r.Call.Type]; !ok {
			order = append(order, r.Call.Type)
		}
		groups[r.Call.Type] = append(groups[r.Call.Type], r)
	}

	roundTrips := 0
	for _, apiType := range order {
		group := groups[apiType]
		size := c.batchSize(apiType)
		for start := 0; start < len(group); start += size {
			end := min(start+size, len(group))
			c.sendChunk(ctx, apiType, group[start:end])
			roundTrips++
		}
	}
	span.SetAttributes(attribute.Int(batchSentAttribute, roundTrips))

	catcher := grip.NewBasicCatcher()
	for i, r := range b.requests {
		if r.Err == nil && r.onSuccess != nil {
			r.Err = r.onSuccess(r.Response)
		}
		r.done = true
		if r.Err != nil {
			catcher.Wrapf(r.Err, "batch request %d (%s %s)", i, r.Call.Method, r.Call.Request)
		}
	}

	c.log.Debug(message.Fields{
		"message":     "batch executed",
		"requests":    len(b.requests),
		"round_trips": roundTrips,
		"failed":      catcher.Len(),
	})

	err := catcher.Resolve()
	endSpan(span, err)
	return err
}

func (c *Client) sendChunk(ctx context.Context, apiType apimodels.APIType, chunk []*BatchRequest) {
	if len(chunk) == 1 {
		r := chunk[0]
		r.Response, r.Err = c.send(ctx, r.entity, r.Call)
		return
	}

	reqs := make([]*apimodels.Request, 0, len(chunk))
	for _, r := range chunk {
		reqs = append(reqs, r.Call.ToRequest())
	}
	results, err := c.transport.SendBatch(ctx, apiType, reqs)
	if err == nil && len(results) != len(chunk) {
		err = errors.Errorf("batch returned %d responses for %d requests", len(results), len(chunk))
	}
	if err != nil {
		for _, r := range chunk {
			r.Err = err
		}
		return
	}
	for i, res := range results {
		chunk[i].Response, chunk[i].Err = res.Response, res.Err
	}
}
