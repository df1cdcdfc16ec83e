package sharepoint

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/mapping"
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/evergreen-ci/spmodel/model"
	"github.com/google/uuid"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const (
	listType          = "SP.List"
	listCollectionURL = "_api/web/lists"
	recycleProperty   = "Recycle"
	itemsProperty     = "Items"
)

// List is a SharePoint list or document library.
type List struct {
	model.Entity
	Id                         uuid.UUID            `sp:"Id,key" graph:"id,key"`
	Title                      string               `sp:"Title,add" graph:"displayName"`
	Description                string               `sp:"Description" graph:"description"`
	TemplateType               ListTemplateType     `sp:"BaseTemplate,add" graph:"list.template"`
	ListExperience             ListExperience       `sp:"ListExperienceOptions"`
	ReadingDirection           ListReadingDirection `sp:"Direction"`
	EnableVersioning           bool                 `sp:"EnableVersioning"`
	Hidden                     bool                 `sp:"Hidden" graph:"list.hidden"`
	ItemCount                  int                  `sp:"ItemCount"`
	Created                    time.Time            `sp:"Created" graph:"createdDateTime"`
	ListItemEntityTypeFullName string               `sp:"ListItemEntityTypeFullName"`
	WebURL                     string               `sp:"ParentWebUrl" graph:"webUrl"`
	Items                      *ListItemCollection  `sp:"Items" graph:"items"`
}

func init() {
	metadata.MustRegister(&List{}, metadata.TypeInfo{
		SharePoint: metadata.SharePointInfo{
			Type:       listType,
			URI:        "_api/Web/Lists(guid'{Id}')",
			Update:     "_api/web/lists/getbyid(guid'{Id}')",
			Collection: listCollectionURL,
		},
		Graph: metadata.GraphInfo{
			Type:       "#microsoft.graph.list",
			Get:        "sites/{hostname}:{serverrelativepath}:/lists/{GraphId}",
			Collection: "sites/{hostname}:{serverrelativepath}:/lists",
		},
		Tokens: map[string]string{"GraphId": "Id"},
	})
}

var (
	listTemplateTypeType     = reflect.TypeOf(ListTemplateType(0))
	listExperienceType       = reflect.TypeOf(ListExperience(0))
	listReadingDirectionType = reflect.TypeOf(ListReadingDirection(""))
)

func newList(client *model.Client, parent any) *List {
	l := &List{}
	l.Init(l, client, parent)
	l.Items = &ListItemCollection{}
	l.Items.Init(l, client, func(parent any) *ListItem {
		return newListItem(client, parent)
	})

	l.Hooks.MapField = mapListEnums
	l.Hooks.AddOverride = l.addCall
	l.Hooks.ValidateUpdate = l.validateUpdate
	return l
}

func mapListEnums(in mapping.FromJSON) (any, bool) {
	switch in.TargetType {
	case listTemplateTypeType:
		return mapping.ToEnum[ListTemplateType](in.JSONElement)
	case listExperienceType:
		return mapping.ToEnum[ListExperience](in.JSONElement)
	case listReadingDirectionType:
		return mapping.ToEnum[ListReadingDirection](in.JSONElement)
	}
	return nil, false
}

func (l *List) addCall(apimodels.APICall) (apimodels.APICall, error) {
	body := model.NewEntityBody(apimodels.SPORest, listType).
		Set("BaseTemplate", mapping.EncodeValue(l.TemplateType, apimodels.SPORest)).
		Set("Title", l.Title)
	if l.Description != "" {
		body.Set("Description", l.Description)
	}
	encoded, err := body.Encode()
	if err != nil {
		return apimodels.APICall{}, errors.Wrap(err, "encoding list add body")
	}
	return apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, listCollectionURL).WithBody(encoded), nil
}

// validateUpdate drops changes to the base template, which cannot change once
// the list exists.
func (l *List) validateUpdate(req *model.FieldUpdateRequest) {
	if req.FieldName != "TemplateType" {
		return
	}
	req.CancelUpdate()
	l.Client().Logger().Warning(message.Fields{
		"message": "base template of a list cannot be updated",
		"list":    l.Title,
		"id":      l.Id,
	})
}

func (l *List) recycleCall() apimodels.APICall {
	call := apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, "_api/Web/Lists(guid'{Id}')/recycle")
	call.ResultPath = recycleProperty
	call.RemovesEntity = true
	return call
}

func parseRecycleID(id string) (uuid.UUID, error) {
	if id == "" {
		return uuid.Nil, nil
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "parsing recycle bin item id '%s'", id)
	}
	return parsed, nil
}

func checkRecycleID(id string) error {
	_, err := parseRecycleID(id)
	return err
}

// Recycle moves the list to the recycle bin and returns the id of the recycle
// bin item. When the response carries no id, uuid.Nil is returned and the
// list stays in its collection. A malformed id is an error and the list stays
// as well.
func (l *List) Recycle(ctx context.Context) (uuid.UUID, error) {
	id, err := l.Remove(ctx, l.recycleCall(), checkRecycleID)
	if err != nil {
		return uuid.Nil, err
	}
	return parseRecycleID(id)
}

// RecycleAsync recycles the list in the background.
func (l *List) RecycleAsync(ctx context.Context) *model.Pending[uuid.UUID] {
	return model.Go(ctx, l.Recycle)
}

// RecycleBatch queues the recycling of the list. Once the batch is executed
// the request's Result holds the recycle bin item id as a string.
func (l *List) RecycleBatch(b *model.Batch) *model.BatchRequest {
	return l.RemoveBatch(b, l.recycleCall(), checkRecycleID)
}

// RecycleResult returns the recycle bin item id of an executed RecycleBatch
// request.
func RecycleResult(r *model.BatchRequest) (uuid.UUID, error) {
	if r.Err != nil {
		return uuid.Nil, r.Err
	}
	id, _ := r.Result.(string)
	return parseRecycleID(id)
}

func getByTitleCall(title string) apimodels.APICall {
	escaped := strings.ReplaceAll(title, "'", "''")
	return apimodels.NewAPICall(apimodels.SPORest, http.MethodGet, "_api/web/lists/getbytitle('"+escaped+"')")
}

// GetByTitleBatch queues a lookup mapping the list with the given title onto
// this instance.
func (l *List) GetByTitleBatch(b *model.Batch, title string, fields ...string) *model.BatchRequest {
	call, err := l.WithSelect(getByTitleCall(title), fields...)
	if err != nil {
		return b.AddFailed(call, err)
	}
	return l.RequestBatch(b, call)
}

func (l *List) camlCall(opts CamlQueryOptions) (apimodels.APICall, error) {
	body, err := opts.body()
	if err != nil {
		return apimodels.APICall{}, err
	}
	call := apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, "_api/Web/Lists(guid'{Id}')/GetItems").WithBody(body)
	call.ReceivingProperty = itemsProperty
	return call, nil
}

// GetItemsByCamlQuery loads the items matching a CAML view into Items.
func (l *List) GetItemsByCamlQuery(ctx context.Context, query string) (*ListItemCollection, error) {
	return l.GetItemsByCamlQueryOptions(ctx, CamlQueryOptions{ViewXML: query})
}

// GetItemsByCamlQueryOptions loads the items matching the query options into
// Items.
func (l *List) GetItemsByCamlQueryOptions(ctx context.Context, opts CamlQueryOptions) (*ListItemCollection, error) {
	call, err := l.camlCall(opts)
	if err != nil {
		return nil, err
	}
	if err = l.Request(ctx, call); err != nil {
		return nil, err
	}
	return l.Items, nil
}

// GetItemsByCamlQueryAsync runs the query in the background.
func (l *List) GetItemsByCamlQueryAsync(ctx context.Context, opts CamlQueryOptions) *model.Pending[*ListItemCollection] {
	return model.Go(ctx, func(ctx context.Context) (*ListItemCollection, error) {
		return l.GetItemsByCamlQueryOptions(ctx, opts)
	})
}

// GetItemsByCamlQueryBatch queues the query. Items is populated when the
// batch is executed.
func (l *List) GetItemsByCamlQueryBatch(b *model.Batch, opts CamlQueryOptions) *model.BatchRequest {
	call, err := l.camlCall(opts)
	if err != nil {
		return b.AddFailed(call, err)
	}
	return l.RequestBatch(b, call)
}

// ListCollection holds the lists of a web.
type ListCollection struct {
	model.EntityCollection[*List]
}

// Add creates a list and adds it to the collection.
func (c *ListCollection) Add(ctx context.Context, title string, template ListTemplateType) (*List, error) {
	l := c.NewItem()
	l.Title = title
	l.TemplateType = template
	if err := l.Entity.Add(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// AddBatch queues the creation of a list. The list joins the collection when
// the batch is executed.
func (c *ListCollection) AddBatch(b *model.Batch, title string, template ListTemplateType) (*List, *model.BatchRequest) {
	l := c.NewItem()
	l.Title = title
	l.TemplateType = template
	return l, l.Entity.AddBatch(b)
}

// GetByTitle reads the list with the given title.
func (c *ListCollection) GetByTitle(ctx context.Context, title string, fields ...string) (*List, error) {
	call, err := c.NewItem().WithSelect(getByTitleCall(title), fields...)
	if err != nil {
		return nil, err
	}
	return c.QueryOne(ctx, call)
}

// GetByTitleBatch queues a lookup by title. Once the batch is executed the
// request's Result holds the *List.
func (c *ListCollection) GetByTitleBatch(b *model.Batch, title string, fields ...string) *model.BatchRequest {
	call, err := c.NewItem().WithSelect(getByTitleCall(title), fields...)
	if err != nil {
		return b.AddFailed(call, err)
	}
	return c.QueryOneBatch(b, call)
}
