package model

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const packageName = "github.com/evergreen-ci/spmodel/model"

const (
	apiTypeAttribute   = "spmodel.request.api_type"
	methodAttribute    = "spmodel.request.method"
	requestAttribute   = "spmodel.request.url"
	entityAttribute    = "spmodel.request.entity"
	batchSizeAttribute = "spmodel.batch.size"
	batchSentAttribute = "spmodel.batch.round_trips"
)

var tracer = otel.GetTracerProvider().Tracer(packageName)

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func callAttributes(entity string, apiType, method, request string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(entityAttribute, entity),
		attribute.String(apiTypeAttribute, apiType),
		attribute.String(methodAttribute, method),
		attribute.String(requestAttribute, request),
	}
}
