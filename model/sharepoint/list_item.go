package sharepoint

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/mapping"
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/evergreen-ci/spmodel/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	listItemType   = "SP.ListItem"
	listItemsURL   = "_api/web/lists(guid'{Parent.Id}')/items"
	listItemURL    = "_api/web/lists(guid'{Parent.Id}')/items({Id})"
	graphFieldsKey = "fields"
)

var listItemProperties = map[string]bool{
	"Id":       true,
	"ID":       true,
	"id":       true,
	"Title":    true,
	"Created":  true,
	"Modified": true,
}

// ListItem is an item of a list. Column values other than the ones mapped to
// fields are collected into Values.
type ListItem struct {
	model.Entity
	Id       int            `sp:"Id,key" graph:"id,key"`
	Title    string         `sp:"Title,add" graph:"fields.Title"`
	Created  time.Time      `sp:"Created" graph:"createdDateTime"`
	Modified time.Time      `sp:"Modified" graph:"lastModifiedDateTime"`
	Values   map[string]any `sp:"-"`
}

func init() {
	metadata.MustRegister(&ListItem{}, metadata.TypeInfo{
		SharePoint: metadata.SharePointInfo{
			Type:       listItemType,
			URI:        listItemURL,
			Collection: listItemsURL,
		},
		Graph: metadata.GraphInfo{
			Type:       "#microsoft.graph.listItem",
			Get:        "sites/{hostname}:{serverrelativepath}:/lists/{Parent.GraphId}/items/{Id}",
			Collection: "sites/{hostname}:{serverrelativepath}:/lists/{Parent.GraphId}/items",
			ReadOnly:   true,
		},
	})
}

func newListItem(client *model.Client, parent any) *ListItem {
	i := &ListItem{Values: map[string]any{}}
	i.Init(i, client, parent)
	i.Hooks.PostMapping = i.collectValues
	i.Hooks.AddOverride = i.addCall
	return i
}

// List returns the list holding the item, or nil.
func (i *ListItem) List() *List {
	l, _ := i.ParentModel().(*List)
	return l
}

// collectValues copies the dynamic column values of a response into Values.
// Graph nests them under "fields".
func (i *ListItem) collectValues(raw gjson.Result) {
	source := raw
	if fields := raw.Get(graphFieldsKey); fields.IsObject() {
		source = fields
	}
	if i.Values == nil {
		i.Values = map[string]any{}
	}
	source.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if listItemProperties[name] || mapping.IsAnnotation(name) || mapping.IsNavigationStub(value) {
			return true
		}
		i.Values[name] = value.Value()
		return true
	})
}

func (i *ListItem) entityType() (string, error) {
	l := i.List()
	if l == nil {
		return "", spmodel.NewMetadataError(listItemType, "", "list item does not belong to a list")
	}
	if l.ListItemEntityTypeFullName == "" {
		return "", spmodel.NewMetadataError(listType, "ListItemEntityTypeFullName", "the list's item entity type is not loaded")
	}
	return l.ListItemEntityTypeFullName, nil
}

func (i *ListItem) valuesBody(values map[string]any) (*model.Body, error) {
	typeName, err := i.entityType()
	if err != nil {
		return nil, err
	}
	body := model.NewEntityBody(apimodels.SPORest, typeName)
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body.Set(name, values[name])
	}
	return body, nil
}

// addCall posts the title and column values typed with the parent list's
// item entity type.
func (i *ListItem) addCall(apimodels.APICall) (apimodels.APICall, error) {
	values := make(map[string]any, len(i.Values)+1)
	for k, v := range i.Values {
		values[k] = v
	}
	if i.Title != "" {
		values["Title"] = i.Title
	}
	body, err := i.valuesBody(values)
	if err != nil {
		return apimodels.APICall{}, err
	}
	encoded, err := body.Encode()
	if err != nil {
		return apimodels.APICall{}, errors.Wrap(err, "encoding list item add body")
	}
	return apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, listItemsURL).WithBody(encoded), nil
}

func (i *ListItem) updateValuesCall(values map[string]any) (apimodels.APICall, error) {
	body, err := i.valuesBody(values)
	if err != nil {
		return apimodels.APICall{}, err
	}
	encoded, err := body.Encode()
	if err != nil {
		return apimodels.APICall{}, errors.Wrap(err, "encoding list item values")
	}
	return apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, listItemURL).
		WithHeader(spmodel.HTTPMethodHeader, spmodel.MethodMerge).
		WithHeader(spmodel.IfMatchHeader, "*").
		WithBody(encoded), nil
}

func (i *ListItem) mergeValues(values map[string]any) {
	for k, v := range values {
		i.Values[k] = v
	}
}

// UpdateValues sets column values on the item.
func (i *ListItem) UpdateValues(ctx context.Context, values map[string]any) error {
	call, err := i.updateValuesCall(values)
	if err != nil {
		return err
	}
	if _, err = i.RawRequest(ctx, call); err != nil {
		return err
	}
	i.mergeValues(values)
	return nil
}

// UpdateValuesBatch queues an update of column values. Values is updated
// once the request succeeds.
func (i *ListItem) UpdateValuesBatch(b *model.Batch, values map[string]any) *model.BatchRequest {
	call, err := i.updateValuesCall(values)
	if err != nil {
		return b.AddFailed(call, err)
	}
	return i.RequestBatchThen(b, call, func() { i.mergeValues(values) })
}

func (i *ListItem) recycleCall() apimodels.APICall {
	call := apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, listItemURL+"/recycle")
	call.ResultPath = recycleProperty
	call.RemovesEntity = true
	return call
}

// Recycle moves the item to the recycle bin. The item leaves its collection
// only when the response carries the recycle bin item id.
func (i *ListItem) Recycle(ctx context.Context) (uuid.UUID, error) {
	id, err := i.Remove(ctx, i.recycleCall(), checkRecycleID)
	if err != nil {
		return uuid.Nil, err
	}
	return parseRecycleID(id)
}

// RecycleBatch queues the recycling of the item. Use RecycleResult to read
// the outcome once the batch is executed.
func (i *ListItem) RecycleBatch(b *model.Batch) *model.BatchRequest {
	return i.RemoveBatch(b, i.recycleCall(), checkRecycleID)
}

// ListItemCollection holds the items of a list.
type ListItemCollection struct {
	model.EntityCollection[*ListItem]
}

// Add creates an item with a title and column values.
func (c *ListItemCollection) Add(ctx context.Context, title string, values map[string]any) (*ListItem, error) {
	i := c.NewItem()
	i.Title = title
	i.mergeValues(values)
	if err := i.Entity.Add(ctx); err != nil {
		return nil, err
	}
	return i, nil
}

// AddBatch queues the creation of an item.
func (c *ListItemCollection) AddBatch(b *model.Batch, title string, values map[string]any) (*ListItem, *model.BatchRequest) {
	i := c.NewItem()
	i.Title = title
	i.mergeValues(values)
	return i, i.Entity.AddBatch(b)
}
