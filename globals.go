// Package spmodel holds the settings, error types and wire constants shared by
// the model-driven SharePoint and Microsoft Graph client.
package spmodel

const (
	ContentTypeHeader   = "Content-Type"
	ContentLengthHeader = "Content-Length"
	AcceptHeader        = "Accept"
	UserAgentHeader     = "User-Agent"
	RetryAfterHeader    = "Retry-After"
	HTTPMethodHeader    = "X-HTTP-Method"
	IfMatchHeader       = "IF-MATCH"

	// ContentTypeVerbose is the OData verbose JSON flavor used for SharePoint
	// REST requests and responses. Verbose responses wrap payloads in a "d"
	// envelope and collections in "results".
	ContentTypeVerbose = "application/json;odata=verbose"
	ContentTypeJSON    = "application/json"
	ContentTypeHTTP    = "application/http"

	// RESTEnvelope and RESTResults are the verbose OData envelope properties.
	RESTEnvelope = "d"
	RESTResults  = "results"
	// GraphResults is the property holding graph collection responses.
	GraphResults = "value"

	RESTMetadataProperty = "__metadata"
	RESTDeferredProperty = "__deferred"
	GraphTypeProperty    = "@odata.type"
	GraphAnnotation      = "@odata."

	RESTBatchPath  = "_api/$batch"
	GraphBatchPath = "$batch"

	// MERGE and DELETE tunnel through POST for SharePoint REST.
	MethodMerge  = "MERGE"
	MethodDelete = "DELETE"
)

// Context tokens usable in any URL template.
const (
	TokenHostname           = "hostname"
	TokenServerRelativePath = "serverrelativepath"
	TokenSiteURL            = "siteurl"
)
