package sharepoint

import (
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/model"
	"github.com/pkg/errors"
)

// CamlQueryOptions selects list items with a CAML view. Unset options are
// left out of the request.
type CamlQueryOptions struct {
	ViewXML                    string
	AllowIncrementalResults    *bool
	DatesInUtc                 *bool
	FolderServerRelativeURL    string
	ListItemCollectionPosition *ListItemCollectionPosition
}

// ListItemCollectionPosition is the paging position of a previous query.
type ListItemCollectionPosition struct {
	PagingInfo string
}

func (o CamlQueryOptions) body() (string, error) {
	query := model.NewEntityBody(apimodels.SPORest, "SP.CamlQuery")
	if o.ViewXML != "" {
		query.Set("ViewXml", o.ViewXML)
	}
	if o.AllowIncrementalResults != nil {
		query.Set("AllowIncrementalResults", *o.AllowIncrementalResults)
	}
	if o.DatesInUtc != nil {
		query.Set("DatesInUtc", *o.DatesInUtc)
	}
	if o.FolderServerRelativeURL != "" {
		query.Set("FolderServerRelativeUrl", o.FolderServerRelativeURL)
	}
	if o.ListItemCollectionPosition != nil {
		query.Set("ListItemCollectionPosition", model.NewBody().Set("PagingInfo", o.ListItemCollectionPosition.PagingInfo))
	}

	out, err := model.NewBody().Set("query", query).Encode()
	if err != nil {
		return "", errors.Wrap(err, "encoding CAML query")
	}
	return out, nil
}
