package model

import (
	"context"
	"net/http"
	"reflect"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/mapping"
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// EntityCollection holds the child instances of a model, such as the lists
// of a web. Children are merged by their key field when result sets are
// mapped.
type EntityCollection[T Model] struct {
	parent  Model
	client  *Client
	newItem func(parent any) T
	items   []T
	loaded  bool
}

// Init binds the collection to its owner. newItem must return an initialized
// instance whose parent is the given value.
func (c *EntityCollection[T]) Init(parent Model, client *Client, newItem func(parent any) T) {
	c.parent = parent
	c.client = client
	c.newItem = newItem
}

// IsEntityCollection implements metadata.CollectionMarker.
func (c *EntityCollection[T]) IsEntityCollection() {}

// ParentModel returns the instance owning the collection.
func (c *EntityCollection[T]) ParentModel() Model { return c.parent }

// Client returns the client the collection is bound to.
func (c *EntityCollection[T]) Client() *Client { return c.client }

// Items returns the instances currently held.
func (c *EntityCollection[T]) Items() []T { return append([]T(nil), c.items...) }

// Len returns the number of instances held.
func (c *EntityCollection[T]) Len() int { return len(c.items) }

// Loaded reports whether a result set has been mapped into the collection.
func (c *EntityCollection[T]) Loaded() bool { return c.loaded }

// NewItem returns a new instance whose parent is the collection. It is not
// added to the collection until it is created remotely or attached.
func (c *EntityCollection[T]) NewItem() T {
	return c.newItem(c)
}

// Find returns the instance with the given key value.
func (c *EntityCollection[T]) Find(key any) (T, bool) {
	for _, item := range c.items {
		if k := item.entity().keyValue(); k != nil && reflect.DeepEqual(k, key) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Attach adds an instance to the collection. An instance with the same key is
// replaced.
func (c *EntityCollection[T]) Attach(m Model) error {
	item, ok := m.(T)
	if !ok {
		return errors.Errorf("cannot attach %T to collection of %T", m, *new(T))
	}
	item.entity().parent = c
	if key := item.entity().keyValue(); key != nil {
		for i, existing := range c.items {
			if reflect.DeepEqual(existing.entity().keyValue(), key) {
				c.items[i] = item
				return nil
			}
		}
	}
	for _, existing := range c.items {
		if Model(existing) == m {
			return nil
		}
	}
	c.items = append(c.items, item)
	return nil
}

// Remove removes an instance from the collection. The instance keeps the
// collection's owner as its parent.
func (c *EntityCollection[T]) Remove(m Model) bool {
	for i, existing := range c.items {
		if Model(existing) == m {
			c.items = append(c.items[:i], c.items[i+1:]...)
			existing.entity().parent = c.parent
			return true
		}
	}
	return false
}

func (c *EntityCollection[T]) prototype() (T, *metadata.EntityInfo, error) {
	item := c.NewItem()
	info, err := item.entity().Metadata()
	return item, info, err
}

// LoadCall builds the request listing the collection from the item type's
// collection URL.
func (c *EntityCollection[T]) LoadCall() (apimodels.APICall, error) {
	item, info, err := c.prototype()
	if err != nil {
		return apimodels.APICall{}, err
	}

	var call apimodels.APICall
	switch {
	case c.client.readProtocol(info.Graph.Collection, nil) == apimodels.Graph:
		call = apimodels.NewAPICall(apimodels.Graph, http.MethodGet, info.Graph.Collection)
	case info.SharePoint.Collection != "":
		call = apimodels.NewAPICall(apimodels.SPORest, http.MethodGet, info.SharePoint.Collection)
	case info.Graph.Collection != "":
		call = apimodels.NewAPICall(apimodels.Graph, http.MethodGet, info.Graph.Collection)
	default:
		return apimodels.APICall{}, spmodel.NewMetadataError(info.Name(), "", "type declares no collection URL")
	}
	return item.entity().ResolveCall(call)
}

// ResolveCall binds a call against the collection's owner.
func (c *EntityCollection[T]) ResolveCall(call apimodels.APICall) (apimodels.APICall, error) {
	item, _, err := c.prototype()
	if err != nil {
		return call, err
	}
	return item.entity().ResolveCall(call)
}

func (c *EntityCollection[T]) typeName() string {
	_, info, err := c.prototype()
	if err != nil {
		return reflect.TypeOf(*new(T)).String()
	}
	return info.Name() + " collection"
}

// Load reads every instance of the collection.
func (c *EntityCollection[T]) Load(ctx context.Context) error {
	call, err := c.LoadCall()
	if err != nil {
		return err
	}
	return c.Query(ctx, call)
}

// LoadBatch queues the listing of the collection on the batch.
func (c *EntityCollection[T]) LoadBatch(b *Batch) *BatchRequest {
	call, err := c.LoadCall()
	if err != nil {
		return b.AddFailed(call, err)
	}
	return c.QueryBatch(b, call)
}

// Query sends a call returning a result set and merges it into the
// collection.
func (c *EntityCollection[T]) Query(ctx context.Context, call apimodels.APICall) error {
	call, err := c.ResolveCall(call)
	if err != nil {
		return err
	}
	resp, err := c.client.send(ctx, c.typeName(), call)
	if err != nil {
		return err
	}
	return c.complete(call, resp)
}

// QueryBatch queues a call returning a result set on the batch.
func (c *EntityCollection[T]) QueryBatch(b *Batch, call apimodels.APICall) *BatchRequest {
	call, err := c.ResolveCall(call)
	return b.add(c.typeName(), call, err, func(resp *apimodels.Response) error {
		return c.complete(call, resp)
	})
}

// QueryOne sends a call returning a single instance, as lookups by title do,
// and merges it into the collection.
func (c *EntityCollection[T]) QueryOne(ctx context.Context, call apimodels.APICall) (T, error) {
	var zero T
	call, err := c.ResolveCall(call)
	if err != nil {
		return zero, err
	}
	resp, err := c.client.send(ctx, c.typeName(), call)
	if err != nil {
		return zero, err
	}
	return c.completeOne(call, resp)
}

// QueryOneBatch queues a call returning a single instance on the batch. The
// instance is available from the request's Result once the batch is executed.
func (c *EntityCollection[T]) QueryOneBatch(b *Batch, call apimodels.APICall) *BatchRequest {
	call, err := c.ResolveCall(call)
	var r *BatchRequest
	r = b.add(c.typeName(), call, err, func(resp *apimodels.Response) error {
		item, err := c.completeOne(call, resp)
		if err != nil {
			return err
		}
		r.Result = item
		return nil
	})
	return r
}

func (c *EntityCollection[T]) complete(call apimodels.APICall, resp *apimodels.Response) error {
	raw, ok := result(call, resp)
	if !ok {
		return nil
	}
	return c.mapItems(call.Type, raw)
}

func (c *EntityCollection[T]) completeOne(call apimodels.APICall, resp *apimodels.Response) (T, error) {
	var zero T
	raw, ok := result(call, resp)
	if !ok {
		return zero, errors.Errorf("response to %s %s carries no instance", call.Method, call.Request)
	}
	return c.mapItem(call.Type, raw)
}

func itemsOf(raw gjson.Result) (gjson.Result, bool) {
	if raw.IsArray() {
		return raw, true
	}
	for _, path := range []string{spmodel.RESTResults, spmodel.GraphResults} {
		if items := raw.Get(path); items.IsArray() {
			return items, true
		}
	}
	return gjson.Result{}, false
}

func (c *EntityCollection[T]) mapItems(apiType apimodels.APIType, raw gjson.Result) error {
	items, ok := itemsOf(raw)
	if !ok {
		return errors.New("result set holds no array of instances")
	}

	catcher := grip.NewBasicCatcher()
	items.ForEach(func(_, elem gjson.Result) bool {
		_, err := c.mapItem(apiType, elem)
		catcher.Add(err)
		return true
	})
	c.loaded = true
	return catcher.Resolve()
}

// mapItem maps one JSON object onto the child with the same key, or onto a new
// child appended to the collection.
func (c *EntityCollection[T]) mapItem(apiType apimodels.APIType, elem gjson.Result) (T, error) {
	item, info, err := c.prototype()
	if err != nil {
		return item, err
	}
	if key := info.Key(); key != nil {
		if name := key.RemoteName(apiType); name != "" {
			tag := metadata.SharePointTag
			if apiType == apimodels.Graph {
				tag = metadata.GraphTag
			}
			v, err := mapping.Decode(elem.Get(name), key.Type, tag)
			if err == nil && !v.IsZero() {
				if existing, ok := c.Find(v.Interface()); ok {
					item = existing
				}
			}
		}
	}

	if err = item.entity().mapJSON(apiType, elem); err != nil {
		return item, err
	}
	return item, c.Attach(item)
}
