package model

import (
	"strconv"
	"strings"

	"github.com/evergreen-ci/spmodel/metadata"
	"github.com/mongodb/grip/send"
	"github.com/pkg/errors"
)

const testSiteURL = "https://contoso.sharepoint.com/sites/team"

type testShade int

const (
	shadeNone testShade = iota
	shadeLight
	shadeDark
)

func (s testShade) MarshalText() ([]byte, error) {
	switch s {
	case shadeNone:
		return []byte("none"), nil
	case shadeLight:
		return []byte("light"), nil
	case shadeDark:
		return []byte("dark"), nil
	}
	return nil, errors.Errorf("invalid shade %d", int(s))
}

func (s *testShade) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none":
		*s = shadeNone
	case "light":
		*s = shadeLight
	case "dark":
		*s = shadeDark
	default:
		n, err := strconv.Atoi(string(text))
		if err != nil {
			return errors.Errorf("unknown shade '%s'", text)
		}
		*s = testShade(n)
	}
	return nil
}

type testWeb struct {
	Entity
	Id      string `sp:"Id,key" graph:"id,key"`
	Title   string `sp:"Title" graph:"displayName"`
	Folders *testFolderCollection `sp:"Folders"`
}

type testFolderCollection struct {
	EntityCollection[*testFolder]
}

type testFolder struct {
	Entity
	Id        int       `sp:"Id,key" graph:"id,key"`
	Name      string    `sp:"Name,add" graph:"name"`
	Shade     testShade `sp:"Shade,add" graph:"shade"`
	Tags      []string  `sp:"Tags"`
	OwnerName string    `sp:"OwnerName" graph:"createdBy.user.displayName"`
	Hidden    bool      `sp:"Hidden"`
}

func init() {
	metadata.MustRegister(&testWeb{}, metadata.TypeInfo{
		SharePoint: metadata.SharePointInfo{Type: "SP.Web", URI: "_api/web"},
		Graph:      metadata.GraphInfo{Get: "sites/{hostname}:{serverrelativepath}"},
	})
	metadata.MustRegister(&testFolder{}, metadata.TypeInfo{
		SharePoint: metadata.SharePointInfo{
			Type:       "SP.Folder",
			URI:        "_api/web/folders({Id})",
			Update:     "_api/web/folders/getbyid({Id})",
			Collection: "_api/web/folders",
		},
		Graph: metadata.GraphInfo{
			Type:       "#microsoft.graph.folder",
			Get:        "sites/{hostname}:{serverrelativepath}:/folders/{Id}",
			Collection: "sites/{hostname}:{serverrelativepath}:/folders",
		},
	})
}

func newTestWeb(client *Client) *testWeb {
	w := &testWeb{}
	w.Init(w, client, nil)
	w.Folders = &testFolderCollection{}
	w.Folders.Init(w, client, func(parent any) *testFolder {
		return newTestFolder(client, parent)
	})
	return w
}

func newTestFolder(client *Client, parent any) *testFolder {
	f := &testFolder{}
	f.Init(f, client, parent)
	return f
}

// loggedMessages drains the sender and returns the rendered messages.
func loggedMessages(sender *send.InternalSender) []string {
	var out []string
	for sender.HasMessage() {
		out = append(out, sender.GetMessage().Message.String())
	}
	return out
}

func containsMessage(messages []string, parts ...string) bool {
	for _, m := range messages {
		found := true
		for _, p := range parts {
			if !strings.Contains(m, p) {
				found = false
				break
			}
		}
		if found {
			return true
		}
	}
	return false
}
