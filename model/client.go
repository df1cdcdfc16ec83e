// Package model holds the engine that turns operations on model instances
// into requests against SharePoint REST or Microsoft Graph and maps the
// responses back onto the instances.
package model

import (
	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/evergreen-ci/spmodel/transport"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/logging"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Client binds model instances to one site and the transport used to reach it.
type Client struct {
	settings  *spmodel.Settings
	transport transport.Transport
	log       grip.Journaler
}

// NewClient returns a client for the site in the settings. The settings must
// already be validated.
func NewClient(settings *spmodel.Settings, t transport.Transport) *Client {
	return &Client{
		settings:  settings,
		transport: t,
		log:       logging.MakeGrip(grip.GetSender()),
	}
}

// Connect validates the settings and returns a client reaching the site over
// HTTP with bearer tokens from the given sources, logging at the settings'
// level.
func Connect(settings *spmodel.Settings, tokens map[apimodels.APIType]oauth2.TokenSource) (*Client, error) {
	if err := settings.ValidateAndDefault(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}
	log, err := spmodel.NewLogger("spmodel", settings.LogLevel)
	if err != nil {
		return nil, err
	}
	t := transport.NewHTTP(settings)
	t.SetLogger(log)
	for apiType, ts := range tokens {
		t.SetTokenSource(apiType, ts)
	}

	c := NewClient(settings, t)
	c.SetLogger(log)
	return c, nil
}

// SetLogger sets the logger receiving mapping notices and request
// diagnostics.
func (c *Client) SetLogger(log grip.Journaler) { c.log = log }

// Logger returns the client's logger.
func (c *Client) Logger() grip.Journaler { return c.log }

// Settings returns the client's settings.
func (c *Client) Settings() *spmodel.Settings { return c.settings }

// Transport returns the client's transport.
func (c *Client) Transport() transport.Transport { return c.transport }

func (c *Client) contextTokens() map[string]string {
	return map[string]string{
		spmodel.TokenHostname:           c.settings.SiteHost(),
		spmodel.TokenServerRelativePath: c.settings.SiteServerRelativePath(),
		spmodel.TokenSiteURL:            c.settings.SiteURL,
	}
}

// readProtocol picks the protocol of a read. Graph is only used when the
// client prefers it, the type has a graph template and every requested field
// is exposed on graph.
func (c *Client) readProtocol(graphTemplate string, fields []*metadata.FieldInfo) apimodels.APIType {
	if !c.settings.GraphFirst || graphTemplate == "" {
		return apimodels.SPORest
	}
	for _, f := range fields {
		if f.Graph == "" {
			return apimodels.SPORest
		}
	}
	return apimodels.Graph
}

// writeProtocol picks the protocol of an update or delete. Types whose graph
// surface is read only are written over SharePoint REST.
func (c *Client) writeProtocol(info *metadata.EntityInfo, fields []*metadata.FieldInfo) apimodels.APIType {
	if info.Graph.ReadOnly && (info.SharePoint.URI != "" || info.SharePoint.Update != "") {
		return apimodels.SPORest
	}
	return c.readProtocol(info.Graph.Get, fields)
}

func (c *Client) batchSize(apiType apimodels.APIType) int {
	size := c.settings.HTTP.RESTBatchSize
	if apiType == apimodels.Graph {
		size = c.settings.HTTP.GraphBatchSize
	}
	if size < 1 {
		size = 1
	}
	return size
}
