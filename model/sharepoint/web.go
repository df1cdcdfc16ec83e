// Package sharepoint holds the SharePoint model types: the web of a site, its
// lists and their items.
package sharepoint

import (
	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/evergreen-ci/spmodel/model"
	"github.com/google/uuid"
)

// Web is the root web of the site the client is bound to.
type Web struct {
	model.Entity
	Id          uuid.UUID       `sp:"Id,key"`
	Title       string          `sp:"Title" graph:"displayName"`
	Description string          `sp:"Description" graph:"description"`
	URL         string          `sp:"Url" graph:"webUrl"`
	Lists       *ListCollection `sp:"Lists"`
}

func init() {
	metadata.MustRegister(&Web{}, metadata.TypeInfo{
		SharePoint: metadata.SharePointInfo{
			Type: "SP.Web",
			URI:  "_api/web",
		},
		Graph: metadata.GraphInfo{
			Get: "sites/{hostname}:{serverrelativepath}",
		},
	})
}

// NewWeb returns the web of the client's site.
func NewWeb(client *model.Client) *Web {
	w := &Web{}
	w.Init(w, client, nil)
	w.Lists = &ListCollection{}
	w.Lists.Init(w, client, func(parent any) *List {
		return newList(client, parent)
	})
	return w
}
