package model

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/mapping"
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// ResolveCall binds the placeholders of the call's URL against the instance,
// its parents and the site, and checks that the call can be dispatched.
func (e *Entity) ResolveCall(call apimodels.APICall) (apimodels.APICall, error) {
	if e.client == nil {
		return call, spmodel.NewMetadataError(e.typeName(), "", "model instance is not bound to a client")
	}
	resolved, err := metadata.ResolveTemplate(call.Request, e, e.client.contextTokens())
	if err != nil {
		return call, err
	}
	call.Request = resolved
	if err = call.Validate(); err != nil {
		return call, err
	}
	return call, nil
}

func (e *Entity) requestedFields(info *metadata.EntityInfo, names []string) ([]*metadata.FieldInfo, error) {
	fields := make([]*metadata.FieldInfo, 0, len(names))
	for _, name := range names {
		f, ok := info.Field(name)
		if !ok {
			return nil, spmodel.NewMetadataError(info.Name(), name, "type has no such field")
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// selectQuery builds the OData query selecting and expanding the fields.
func selectQuery(apiType apimodels.APIType, fields []*metadata.FieldInfo) string {
	if len(fields) == 0 {
		return ""
	}
	var selects, expands []string
	for _, f := range fields {
		name := f.RemoteName(apiType)
		if name == "" {
			continue
		}
		if apiType == apimodels.Graph {
			name, _, _ = strings.Cut(name, ".")
		}
		if f.Kind == metadata.Collection {
			expands = append(expands, name)
		}
		if !containsString(selects, name) {
			selects = append(selects, name)
		}
	}

	var params []string
	if len(selects) > 0 {
		params = append(params, "$select="+strings.Join(selects, ","))
	}
	if len(expands) > 0 {
		params = append(params, "$expand="+strings.Join(expands, ","))
	}
	return strings.Join(params, "&")
}

func withQuery(path, query string) string {
	if query == "" {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + query
	}
	return path + "?" + query
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

// WithSelect returns the call with a query selecting the given fields, named
// by their Go names, on the call's protocol.
func (e *Entity) WithSelect(call apimodels.APICall, fields ...string) (apimodels.APICall, error) {
	info, err := e.Metadata()
	if err != nil {
		return call, err
	}
	requested, err := e.requestedFields(info, fields)
	if err != nil {
		return call, err
	}
	call.Request = withQuery(call.Request, selectQuery(call.Type, requested))
	return call, nil
}

// GetCall builds the request reading the instance. When fields are given only
// those are selected.
func (e *Entity) GetCall(fields ...string) (apimodels.APICall, error) {
	info, err := e.Metadata()
	if err != nil {
		return apimodels.APICall{}, err
	}
	requested, err := e.requestedFields(info, fields)
	if err != nil {
		return apimodels.APICall{}, err
	}

	apiType := e.client.readProtocol(info.Graph.Get, requested)
	template := info.SharePoint.URI
	if apiType == apimodels.Graph {
		template = info.Graph.Get
	}
	if template == "" {
		return apimodels.APICall{}, spmodel.NewMetadataError(info.Name(), "", "type declares no %s URL", apiType)
	}

	call := apimodels.NewAPICall(apiType, http.MethodGet, withQuery(template, selectQuery(apiType, requested)))
	return e.ResolveCall(call)
}

// AddCall builds the request creating the instance: the type tag and every
// field tagged for adds, posted to the collection URL. An AddOverride hook
// replaces the call.
func (e *Entity) AddCall() (apimodels.APICall, error) {
	call, err := e.defaultAddCall()
	if e.Hooks.AddOverride != nil {
		if err != nil {
			call = apimodels.APICall{}
		}
		if call, err = e.Hooks.AddOverride(call); err != nil {
			return apimodels.APICall{}, errors.Wrap(err, "add override")
		}
	}
	if err != nil {
		return apimodels.APICall{}, err
	}
	return e.ResolveCall(call)
}

func (e *Entity) defaultAddCall() (apimodels.APICall, error) {
	info, err := e.Metadata()
	if err != nil {
		return apimodels.APICall{}, err
	}

	apiType := apimodels.SPORest
	template, typeName := info.SharePoint.Collection, info.SharePoint.Type
	if template == "" {
		apiType = apimodels.Graph
		template, typeName = info.Graph.Collection, info.Graph.Type
	}
	if template == "" {
		return apimodels.APICall{}, spmodel.NewMetadataError(info.Name(), "", "type declares no collection URL to add to")
	}

	body := NewEntityBody(apiType, typeName)
	for _, f := range info.Fields {
		name := f.RemoteName(apiType)
		if !f.Add || name == "" {
			continue
		}
		body.SetPath(name, mapping.EncodeValue(e.fieldValue(f).Interface(), apiType))
	}
	encoded, err := body.Encode()
	if err != nil {
		return apimodels.APICall{}, errors.Wrapf(err, "encoding add body of '%s'", info.Name())
	}

	return apimodels.NewAPICall(apiType, http.MethodPost, template).WithBody(encoded), nil
}

type fieldChange struct {
	field *metadata.FieldInfo
	value any
}

// changes returns the fields whose value differs from the last mapped state,
// after ValidateUpdate hooks had their say.
func (e *Entity) changes(info *metadata.EntityInfo) []fieldChange {
	var out []fieldChange
	for _, f := range info.Fields {
		if f.Kind == metadata.Collection || f.Key {
			continue
		}
		current := e.fieldValue(f)
		previous, known := e.snapshot[f.Name]
		if known && reflect.DeepEqual(previous, current.Interface()) {
			continue
		}
		if !known && current.IsZero() {
			continue
		}

		req := &FieldUpdateRequest{FieldName: f.Name, value: current.Interface()}
		if e.Hooks.ValidateUpdate != nil {
			e.Hooks.ValidateUpdate(req)
		}
		if req.Cancelled() {
			e.client.log.Debug(message.Fields{
				"message": "update of field cancelled",
				"type":    info.Name(),
				"field":   f.Name,
			})
			continue
		}
		out = append(out, fieldChange{field: f, value: req.Value()})
	}
	return out
}

// UpdateCall builds the request sending the changed fields. It returns false
// when nothing changed.
func (e *Entity) UpdateCall() (apimodels.APICall, bool, error) {
	call, changed, _, err := e.updateCall()
	return call, changed, err
}

func (e *Entity) updateCall() (apimodels.APICall, bool, []string, error) {
	info, err := e.Metadata()
	if err != nil {
		return apimodels.APICall{}, false, nil, err
	}
	changes := e.changes(info)
	if len(changes) == 0 {
		return apimodels.APICall{}, false, nil, nil
	}

	fields := make([]*metadata.FieldInfo, 0, len(changes))
	names := make([]string, 0, len(changes))
	for _, c := range changes {
		fields = append(fields, c.field)
		names = append(names, c.field.Name)
	}

	apiType := e.client.writeProtocol(info, fields)
	if apiType == apimodels.SPORest && info.SharePoint.URI == "" && info.SharePoint.Update == "" {
		apiType = apimodels.Graph
	}

	var body *Body
	var call apimodels.APICall
	if apiType == apimodels.Graph {
		if info.Graph.Get == "" {
			return apimodels.APICall{}, false, nil, spmodel.NewMetadataError(info.Name(), "", "type declares no URL to update")
		}
		body = NewBody()
		call = apimodels.NewAPICall(apimodels.Graph, http.MethodPatch, info.Graph.Get)
	} else {
		template := info.SharePoint.Update
		if template == "" {
			template = info.SharePoint.URI
		}
		body = NewEntityBody(apimodels.SPORest, info.SharePoint.Type)
		call = apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, template).
			WithHeader(spmodel.HTTPMethodHeader, spmodel.MethodMerge).
			WithHeader(spmodel.IfMatchHeader, "*")
	}

	for _, c := range changes {
		name := c.field.RemoteName(apiType)
		if name == "" {
			return apimodels.APICall{}, false, nil, spmodel.NewMetadataError(info.Name(), c.field.Name, "field is not exposed on %s", apiType)
		}
		body.SetPath(name, mapping.EncodeValue(c.value, apiType))
	}
	encoded, err := body.Encode()
	if err != nil {
		return apimodels.APICall{}, false, nil, errors.Wrapf(err, "encoding update body of '%s'", info.Name())
	}

	call, err = e.ResolveCall(call.WithBody(encoded))
	if err != nil {
		return apimodels.APICall{}, false, nil, err
	}
	return call, true, names, nil
}

// DeleteCall builds the request deleting the instance. A DeleteOverride hook
// replaces the call.
func (e *Entity) DeleteCall() (apimodels.APICall, error) {
	call, err := e.defaultDeleteCall()
	if e.Hooks.DeleteOverride != nil {
		if err != nil {
			call = apimodels.APICall{}
		}
		if call, err = e.Hooks.DeleteOverride(call); err != nil {
			return apimodels.APICall{}, errors.Wrap(err, "delete override")
		}
	}
	if err != nil {
		return apimodels.APICall{}, err
	}
	return e.ResolveCall(call)
}

func (e *Entity) defaultDeleteCall() (apimodels.APICall, error) {
	info, err := e.Metadata()
	if err != nil {
		return apimodels.APICall{}, err
	}

	var call apimodels.APICall
	switch {
	case e.client.writeProtocol(info, nil) == apimodels.Graph || (info.SharePoint.URI == "" && info.Graph.Get != ""):
		call = apimodels.NewAPICall(apimodels.Graph, http.MethodDelete, info.Graph.Get)
	case info.SharePoint.URI != "":
		call = apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, info.SharePoint.URI).
			WithHeader(spmodel.HTTPMethodHeader, spmodel.MethodDelete).
			WithHeader(spmodel.IfMatchHeader, "*")
	default:
		return apimodels.APICall{}, spmodel.NewMetadataError(info.Name(), "", "type declares no URL to delete")
	}
	call.RemovesEntity = true

	return call, nil
}
