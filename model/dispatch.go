package model

import (
	"context"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/trace"
)

// send dispatches a resolved call through the client's transport.
func (c *Client) send(ctx context.Context, entity string, call apimodels.APICall) (*apimodels.Response, error) {
	ctx, span := tracer.Start(ctx, call.Method, trace.WithAttributes(
		callAttributes(entity, string(call.Type), call.Method, call.Request)...,
	))
	resp, err := c.transport.Send(ctx, call.ToRequest())
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	c.log.Debug(message.Fields{
		"message":  "request completed",
		"type":     entity,
		"api_type": call.Type,
		"method":   call.Method,
		"request":  call.Request,
		"status":   resp.StatusCode,
	})
	return resp, nil
}

// RawRequest resolves and sends a call and returns the response unmapped.
func (e *Entity) RawRequest(ctx context.Context, call apimodels.APICall) (*apimodels.Response, error) {
	call, err := e.ResolveCall(call)
	if err != nil {
		return nil, err
	}
	return e.client.send(ctx, e.typeName(), call)
}

// Request sends a call and maps the response onto the instance. A call that
// removes the entity detaches the instance from its collection on success.
func (e *Entity) Request(ctx context.Context, call apimodels.APICall) error {
	resp, err := e.RawRequest(ctx, call)
	if err != nil {
		return err
	}
	return e.complete(call, resp)
}

func (e *Entity) complete(call apimodels.APICall, resp *apimodels.Response) error {
	if err := e.mapResponse(call, resp); err != nil {
		return err
	}
	if call.RemovesEntity && call.ResultPath == "" {
		e.detach()
	}
	return nil
}

// Remove sends a call whose result path holds the identifier of the removed
// entity, as recycle operations do. When the identifier is present and passes
// check, the instance is detached and the identifier returned. An absent
// identifier leaves the instance attached and returns the empty string. A nil
// check accepts any identifier.
func (e *Entity) Remove(ctx context.Context, call apimodels.APICall, check func(id string) error) (string, error) {
	if err := e.checkRemoveCall(call); err != nil {
		return "", err
	}
	resp, err := e.RawRequest(ctx, call)
	if err != nil {
		return "", err
	}
	return e.removed(call, resp, check)
}

func (e *Entity) checkRemoveCall(call apimodels.APICall) error {
	if call.ResultPath == "" {
		return spmodel.NewMetadataError(e.typeName(), "", "remove call '%s' declares no result path", call.Request)
	}
	return nil
}

func (e *Entity) removed(call apimodels.APICall, resp *apimodels.Response, check func(id string) error) (string, error) {
	raw, ok := result(call, resp)
	id := raw.String()
	if !ok || id == "" {
		e.client.log.Debug(message.Fields{
			"message":     "response carries no identifier, instance kept",
			"type":        e.typeName(),
			"result_path": call.ResultPath,
		})
		return "", nil
	}
	if check != nil {
		if err := check(id); err != nil {
			return "", errors.Wrapf(err, "invalid identifier at '%s'", call.ResultPath)
		}
	}
	e.detach()
	return id, nil
}

// RequestBatch resolves a call and queues it on the batch. The response is
// mapped onto the instance when the batch is executed.
func (e *Entity) RequestBatch(b *Batch, call apimodels.APICall) *BatchRequest {
	call, err := e.ResolveCall(call)
	return b.add(e.typeName(), call, err, func(resp *apimodels.Response) error {
		return e.complete(call, resp)
	})
}

// RequestBatchThen queues a call like RequestBatch and runs onSuccess once
// the response has been mapped.
func (e *Entity) RequestBatchThen(b *Batch, call apimodels.APICall, onSuccess func()) *BatchRequest {
	call, err := e.ResolveCall(call)
	return b.add(e.typeName(), call, err, func(resp *apimodels.Response) error {
		if err := e.complete(call, resp); err != nil {
			return err
		}
		onSuccess()
		return nil
	})
}

// RemoveBatch queues a call as Remove does. The identifier is available from
// the returned request's Result once the batch is executed.
func (e *Entity) RemoveBatch(b *Batch, call apimodels.APICall, check func(id string) error) *BatchRequest {
	if err := e.checkRemoveCall(call); err != nil {
		return b.AddFailed(call, err)
	}
	call, err := e.ResolveCall(call)
	var r *BatchRequest
	r = b.add(e.typeName(), call, err, func(resp *apimodels.Response) error {
		id, err := e.removed(call, resp, check)
		if err != nil {
			return err
		}
		r.Result = id
		return nil
	})
	return r
}

// Get reads the instance, or only the given fields.
func (e *Entity) Get(ctx context.Context, fields ...string) error {
	call, err := e.GetCall(fields...)
	if err != nil {
		return err
	}
	return e.Request(ctx, call)
}

// GetBatch queues a read of the instance on the batch.
func (e *Entity) GetBatch(b *Batch, fields ...string) *BatchRequest {
	call, err := e.GetCall(fields...)
	if err != nil {
		return b.AddFailed(call, err)
	}
	return e.RequestBatch(b, call)
}

// Add creates the instance. On success the response is mapped onto the
// instance and it is attached to its parent collection.
func (e *Entity) Add(ctx context.Context) error {
	call, err := e.AddCall()
	if err != nil {
		return err
	}
	resp, err := e.client.send(ctx, e.typeName(), call)
	if err != nil {
		return err
	}
	return e.added(call, resp)
}

func (e *Entity) added(call apimodels.APICall, resp *apimodels.Response) error {
	if err := e.mapResponse(call, resp); err != nil {
		return err
	}
	if c := e.ParentCollection(); c != nil {
		return errors.Wrap(c.Attach(e.self), "attaching added instance")
	}
	return nil
}

// AddBatch queues the creation of the instance on the batch.
func (e *Entity) AddBatch(b *Batch) *BatchRequest {
	call, err := e.AddCall()
	return b.add(e.typeName(), call, err, func(resp *apimodels.Response) error {
		return e.added(call, resp)
	})
}

// Update sends the fields changed since the instance was last mapped. It
// returns false without a request when nothing changed.
func (e *Entity) Update(ctx context.Context) (bool, error) {
	call, changed, fields, err := e.updateCall()
	if err != nil || !changed {
		return false, err
	}
	resp, err := e.client.send(ctx, e.typeName(), call)
	if err != nil {
		return false, err
	}
	return true, e.updated(call, resp, fields)
}

func (e *Entity) updated(call apimodels.APICall, resp *apimodels.Response, fields []string) error {
	info, err := e.Metadata()
	if err != nil {
		return err
	}
	for _, name := range fields {
		e.loaded[name] = true
	}
	e.takeSnapshot(info, fields...)
	if resp.Empty() {
		return nil
	}
	return e.mapResponse(call, resp)
}

// UpdateBatch queues an update on the batch. It returns nil when nothing
// changed.
func (e *Entity) UpdateBatch(b *Batch) *BatchRequest {
	call, changed, fields, err := e.updateCall()
	if err != nil {
		return b.AddFailed(call, err)
	}
	if !changed {
		return nil
	}
	return b.add(e.typeName(), call, nil, func(resp *apimodels.Response) error {
		return e.updated(call, resp, fields)
	})
}

// Delete deletes the instance and detaches it from its collection.
func (e *Entity) Delete(ctx context.Context) error {
	call, err := e.DeleteCall()
	if err != nil {
		return err
	}
	resp, err := e.client.send(ctx, e.typeName(), call)
	if err != nil {
		return err
	}
	return e.deleted(call, resp)
}

func (e *Entity) deleted(call apimodels.APICall, resp *apimodels.Response) error {
	if err := e.mapResponse(call, resp); err != nil {
		return err
	}
	e.detach()
	return nil
}

// DeleteBatch queues the deletion of the instance on the batch.
func (e *Entity) DeleteBatch(b *Batch) *BatchRequest {
	call, err := e.DeleteCall()
	return b.add(e.typeName(), call, err, func(resp *apimodels.Response) error {
		return e.deleted(call, resp)
	})
}
