package model

import (
	"reflect"
	"strings"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/mapping"
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/mongodb/grip/message"
	"github.com/tidwall/gjson"
)

// collectionMapper is implemented by collections that can merge a JSON result
// set into their items.
type collectionMapper interface {
	mapItems(apiType apimodels.APIType, raw gjson.Result) error
}

// envelope strips the verbose REST "d" wrapper from a response.
func envelope(raw gjson.Result, apiType apimodels.APIType) gjson.Result {
	if apiType == apimodels.SPORest {
		if d := raw.Get(spmodel.RESTEnvelope); d.Exists() {
			return d
		}
	}
	return raw
}

// result returns the part of a response a call is interested in. The second
// value is false when the response is empty or the result path is missing.
func result(call apimodels.APICall, resp *apimodels.Response) (gjson.Result, bool) {
	if resp.Empty() {
		return gjson.Result{}, false
	}
	raw := envelope(resp.JSON(), call.Type)
	if call.ResultPath != "" {
		raw = raw.Get(call.ResultPath)
	}
	return raw, raw.Exists()
}

func (e *Entity) mapResponse(call apimodels.APICall, resp *apimodels.Response) error {
	raw, ok := result(call, resp)
	if !ok {
		if call.ResultPath != "" && !resp.Empty() {
			e.client.log.Debug(message.Fields{
				"message":     "result path not found in response",
				"type":        e.typeName(),
				"result_path": call.ResultPath,
			})
		}
		return nil
	}

	if call.ReceivingProperty == "" {
		return e.mapJSON(call.Type, raw)
	}

	info, err := e.Metadata()
	if err != nil {
		return err
	}
	f, ok := info.Field(call.ReceivingProperty)
	if !ok || f.Kind != metadata.Collection {
		return spmodel.NewMetadataError(info.Name(), call.ReceivingProperty, "receiving property is not a collection field")
	}
	target, ok := e.collectionField(f)
	if !ok {
		return spmodel.NewMetadataError(info.Name(), f.Name, "collection field is not initialized")
	}
	if err = target.mapItems(call.Type, raw); err != nil {
		return err
	}
	e.loaded[f.Name] = true
	return nil
}

func (e *Entity) collectionField(f *metadata.FieldInfo) (collectionMapper, bool) {
	fv := e.fieldValue(f)
	if fv.Kind() == reflect.Ptr || fv.Kind() == reflect.Interface {
		if fv.IsNil() {
			return nil, false
		}
		m, ok := fv.Interface().(collectionMapper)
		return m, ok
	}
	m, ok := fv.Addr().Interface().(collectionMapper)
	return m, ok
}

// mapJSON maps the properties of a JSON object onto the instance's fields.
// Fields that cannot be mapped are logged and left unchanged.
func (e *Entity) mapJSON(apiType apimodels.APIType, raw gjson.Result) error {
	info, err := e.Metadata()
	if err != nil {
		return err
	}
	if !raw.IsObject() {
		e.client.log.Warning(spmodel.MappingWarning{
			Type:   info.Name(),
			Reason: "response is not a JSON object",
		}.Fields())
		return nil
	}

	tag := metadata.SharePointTag
	if apiType == apimodels.Graph {
		tag = metadata.GraphTag
	}

	known := map[string]bool{}
	var mapped []string
	for _, f := range info.Fields {
		name := f.RemoteName(apiType)
		if name == "" {
			continue
		}
		top, _, _ := strings.Cut(name, ".")
		known[top] = true

		elem := raw.Get(name)
		if !elem.Exists() || mapping.IsNavigationStub(elem) {
			continue
		}
		if e.mapField(info, f, apiType, tag, elem) {
			e.loaded[f.Name] = true
			mapped = append(mapped, f.Name)
		}
	}

	raw.ForEach(func(key, _ gjson.Result) bool {
		if !known[key.String()] && !mapping.IsAnnotation(key.String()) {
			e.client.log.Debug(message.Fields{
				"message":  "unmapped property in response",
				"type":     info.Name(),
				"property": key.String(),
				"api_type": apiType,
			})
		}
		return true
	})

	e.takeSnapshot(info, mapped...)
	if e.Hooks.PostMapping != nil {
		e.Hooks.PostMapping(raw)
	}
	return nil
}

func (e *Entity) mapField(info *metadata.EntityInfo, f *metadata.FieldInfo, apiType apimodels.APIType, tag string, elem gjson.Result) bool {
	warn := func(reason string) bool {
		e.client.log.Warning(spmodel.MappingWarning{
			Type:   info.Name(),
			Field:  f.Name,
			Reason: reason,
		}.Fields())
		return false
	}

	if f.Kind == metadata.Collection {
		target, ok := e.collectionField(f)
		if !ok {
			return warn("collection field is not initialized")
		}
		if err := target.mapItems(apiType, elem); err != nil {
			return warn(err.Error())
		}
		return true
	}

	fv := e.fieldValue(f)
	if e.Hooks.MapField != nil {
		v, ok := e.Hooks.MapField(mapping.FromJSON{
			FieldName:   f.Name,
			TargetType:  f.Type,
			JSONElement: elem,
			APIType:     apiType,
			Log:         e.client.log,
		})
		if ok {
			if v == nil {
				fv.Set(reflect.Zero(f.Type))
				return true
			}
			rv := reflect.ValueOf(v)
			if !rv.Type().AssignableTo(f.Type) {
				if !rv.Type().ConvertibleTo(f.Type) {
					return warn("resolver returned " + rv.Type().String() + " for a field of type " + f.Type.String())
				}
				rv = rv.Convert(f.Type)
			}
			fv.Set(rv)
			return true
		}
	}

	v, err := mapping.Decode(elem, f.Type, tag)
	if err != nil {
		return warn(err.Error())
	}
	fv.Set(v)
	return true
}
