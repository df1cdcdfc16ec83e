package sharepoint

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/evergreen-ci/spmodel/model"
	"github.com/evergreen-ci/spmodel/transport"
	"github.com/google/uuid"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/logging"
	"github.com/mongodb/grip/send"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
)

const (
	testListID    = "9c4ba3a6-5c5b-4e87-b1b4-0a1a8e5e7a10"
	testRecycleID = "3f0d1a5e-8c2b-4f6e-9a7d-5b1c2e3f4a5b"
	testListPath  = "_api/Web/Lists(guid'" + testListID + "')"
)

type ListSuite struct {
	suite.Suite
	mock   *transport.Mock
	client *model.Client
	sender *send.InternalSender
	web    *Web
	ctx    context.Context
	cancel context.CancelFunc
}

func TestListSuite(t *testing.T) {
	suite.Run(t, new(ListSuite))
}

func (s *ListSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 10*time.Second)

	settings, err := spmodel.NewSettings("https://contoso.sharepoint.com/sites/team")
	s.Require().NoError(err)
	s.mock = transport.NewMock()
	s.client = model.NewClient(settings, s.mock)

	s.sender, err = send.NewInternalLogger("sharepoint", send.LevelInfo{Default: level.Info, Threshold: level.Info})
	s.Require().NoError(err)
	s.client.SetLogger(logging.MakeGrip(s.sender))

	s.web = NewWeb(s.client)
}

func (s *ListSuite) TearDownTest() {
	s.cancel()
}

func (s *ListSuite) loadedList() *List {
	l := s.web.Lists.NewItem()
	l.Id = uuid.MustParse(testListID)
	l.Title = "Tasks"
	l.ListItemEntityTypeFullName = "SP.Data.TasksListItem"
	s.Require().NoError(s.web.Lists.Attach(l))
	return l
}

func (s *ListSuite) warnings() []string {
	var out []string
	for s.sender.HasMessage() {
		out = append(out, s.sender.GetMessage().Message.String())
	}
	return out
}

func (s *ListSuite) TestAddList() {
	s.mock.On(http.MethodPost, "_api/web/lists", http.StatusCreated,
		`{"d":{"__metadata":{"type":"SP.List"},"Id":"`+testListID+`","Title":"Tasks","BaseTemplate":100,
		"ListItemEntityTypeFullName":"SP.Data.TasksListItem","Created":"2024-03-01T10:00:00Z","Items":{"__deferred":{}}}}`)

	l, err := s.web.Lists.Add(s.ctx, "Tasks", GenericList)
	s.Require().NoError(err)

	reqs := s.mock.Requests()
	s.Require().Len(reqs, 1)
	s.Equal(http.MethodPost, reqs[0].Method)
	s.Equal("_api/web/lists", reqs[0].Path)
	s.Equal(`{"__metadata":{"type":"SP.List"},"BaseTemplate":100,"Title":"Tasks"}`, string(reqs[0].Body))

	s.Equal(uuid.MustParse(testListID), l.Id)
	s.Equal("SP.Data.TasksListItem", l.ListItemEntityTypeFullName)
	s.Equal(2024, l.Created.Year())
	s.Equal(1, s.web.Lists.Len())
	found, ok := s.web.Lists.Find(l.Id)
	s.True(ok)
	s.Same(l, found)
}

func (s *ListSuite) TestAddListBodyIncludesDescription() {
	l := s.web.Lists.NewItem()
	l.Title = "Docs"
	l.Description = "Team <documents>"
	l.TemplateType = DocumentLibrary

	call, err := l.AddCall()
	s.Require().NoError(err)
	s.Equal(`{"__metadata":{"type":"SP.List"},"BaseTemplate":101,"Title":"Docs","Description":"Team <documents>"}`, call.JSONBody)
}

func (s *ListSuite) TestFieldsRoundTrip() {
	source := s.web.Lists.NewItem()
	source.Title = "Tasks"
	source.TemplateType = GenericList
	call, err := source.AddCall()
	s.Require().NoError(err)

	body := gjson.Parse(call.JSONBody)
	s.mock.On(http.MethodGet, testListPath, http.StatusOK, `{"d":`+strings.Replace(call.JSONBody, `{"__metadata"`, `{"Id":"`+testListID+`","__metadata"`, 1)+`}`)

	fresh := s.web.Lists.NewItem()
	fresh.Id = uuid.MustParse(testListID)
	s.Require().NoError(fresh.Get(s.ctx))
	s.Equal(source.Title, fresh.Title)
	s.Equal(source.TemplateType, fresh.TemplateType)
	s.EqualValues(body.Get("BaseTemplate").Int(), fresh.TemplateType)

	again, err := fresh.AddCall()
	s.Require().NoError(err)
	s.JSONEq(call.JSONBody, again.JSONBody)
}

func (s *ListSuite) TestEnumsFromGraph() {
	s.client.Settings().GraphFirst = true
	l := s.web.Lists.NewItem()
	l.Id = uuid.MustParse(testListID)

	s.mock.On(http.MethodGet, "sites/contoso.sharepoint.com:/sites/team:/lists/"+testListID+"?$select=id,displayName,list", http.StatusOK,
		`{"@odata.etag":"1","id":"`+testListID+`","displayName":"Docs","list":{"template":"documentLibrary","hidden":true}}`)
	s.Require().NoError(l.Get(s.ctx, "Id", "Title", "TemplateType", "Hidden"))
	s.Equal("Docs", l.Title)
	s.Equal(DocumentLibrary, l.TemplateType)
	s.True(l.Hidden)
}

func (s *ListSuite) TestEnumsFromREST() {
	l := s.web.Lists.NewItem()
	l.Id = uuid.MustParse(testListID)
	s.mock.On(http.MethodGet, testListPath, http.StatusOK,
		`{"d":{"BaseTemplate":107,"ListExperienceOptions":2,"Direction":"rtl","EnableVersioning":true,"ItemCount":12}}`)

	s.Require().NoError(l.Get(s.ctx))
	s.Equal(Tasks, l.TemplateType)
	s.Equal(ExperienceClassic, l.ListExperience)
	s.Equal(ReadingDirectionRTL, l.ReadingDirection)
	s.True(l.EnableVersioning)
	s.Equal(12, l.ItemCount)
}

func (s *ListSuite) TestUpdateKeepsBaseTemplate() {
	l := s.web.Lists.NewItem()
	l.Id = uuid.MustParse(testListID)
	s.mock.On(http.MethodGet, testListPath, http.StatusOK, `{"d":{"Title":"Tasks","BaseTemplate":100}}`)
	s.Require().NoError(l.Get(s.ctx))

	l.TemplateType = DocumentLibrary
	l.Title = "Renamed"
	s.mock.On(http.MethodPost, "_api/web/lists/getbyid(guid'"+testListID+"')", http.StatusNoContent, "")

	sent, err := l.Update(s.ctx)
	s.Require().NoError(err)
	s.True(sent)

	reqs := s.mock.Requests()
	last := reqs[len(reqs)-1]
	s.Equal(spmodel.MethodMerge, last.Headers[spmodel.HTTPMethodHeader])
	s.Equal(`{"__metadata":{"type":"SP.List"},"Title":"Renamed"}`, string(last.Body))

	found := false
	for _, m := range s.warnings() {
		found = found || strings.Contains(m, "base template of a list cannot be updated")
	}
	s.True(found)
}

func (s *ListSuite) TestRecycle() {
	l := s.loadedList()

	s.mock.On(http.MethodPost, testListPath+"/recycle", http.StatusOK, `{"d":{}}`)
	id, err := l.Recycle(s.ctx)
	s.Require().NoError(err)
	s.Equal(uuid.Nil, id)
	s.Equal(1, s.web.Lists.Len())

	s.mock.On(http.MethodPost, testListPath+"/recycle", http.StatusOK, `{"d":{"Recycle":"`+testRecycleID+`"}}`)
	id, err = l.Recycle(s.ctx)
	s.Require().NoError(err)
	s.Equal(uuid.MustParse(testRecycleID), id)
	s.Equal(0, s.web.Lists.Len())
}

func (s *ListSuite) TestRecycleAsync() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testListPath+"/recycle", http.StatusOK, `{"d":{"Recycle":"`+testRecycleID+`"}}`)

	id, err := l.RecycleAsync(s.ctx).Wait(s.ctx)
	s.Require().NoError(err)
	s.Equal(uuid.MustParse(testRecycleID), id)
	s.Equal(0, s.web.Lists.Len())
}

func (s *ListSuite) TestRecycleFailureKeepsList() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testListPath+"/recycle", http.StatusForbidden, `{"error":"denied"}`)

	_, err := l.Recycle(s.ctx)
	s.Require().Error(err)
	s.Equal(http.StatusForbidden, spmodel.StatusCode(err))
	s.Equal(1, s.web.Lists.Len())
}

func (s *ListSuite) TestRecycleRequiresID() {
	l := s.web.Lists.NewItem()
	_, err := l.Recycle(s.ctx)
	s.True(spmodel.IsMetadataError(err))
	s.Empty(s.mock.Requests())
}

func (s *ListSuite) TestGetItemsByCamlQuery() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testListPath+"/GetItems", http.StatusOK,
		`{"d":{"results":[{"__metadata":{"type":"SP.Data.TasksListItem"},"Id":1,"Title":"a","Priority":"High","Author":{"__deferred":{}}},{"Id":2,"Title":"b","Priority":"Low"}]}}`)

	items, err := l.GetItemsByCamlQuery(s.ctx, "<View><Query/></View>")
	s.Require().NoError(err)

	reqs := s.mock.Requests()
	s.Require().Len(reqs, 1)
	s.Equal(`{"query":{"__metadata":{"type":"SP.CamlQuery"},"ViewXml":"<View><Query/></View>"}}`, string(reqs[0].Body))

	s.Equal(2, items.Len())
	first, ok := items.Find(1)
	s.Require().True(ok)
	s.Equal("a", first.Title)
	s.Equal("High", first.Values["Priority"])
	s.NotContains(first.Values, "Author")
	s.NotContains(first.Values, "__metadata")
	s.Same(l, first.List())
}

func (s *ListSuite) TestCamlQueryOptions() {
	yes, no := true, false
	body, err := CamlQueryOptions{
		ViewXML:                    "<View/>",
		AllowIncrementalResults:    &no,
		DatesInUtc:                 &yes,
		FolderServerRelativeURL:    "/sites/team/Lists/Tasks/Done",
		ListItemCollectionPosition: &ListItemCollectionPosition{PagingInfo: "Paged=TRUE&p_ID=30"},
	}.body()
	s.Require().NoError(err)
	s.Equal(`{"query":{"__metadata":{"type":"SP.CamlQuery"},"ViewXml":"<View/>","AllowIncrementalResults":false,"DatesInUtc":true,`+
		`"FolderServerRelativeUrl":"/sites/team/Lists/Tasks/Done","ListItemCollectionPosition":{"PagingInfo":"Paged=TRUE&p_ID=30"}}}`, body)
}

func (s *ListSuite) TestGetItemsAsyncAndBatch() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testListPath+"/GetItems", http.StatusOK, `{"d":{"results":[{"Id":5,"Title":"e"}]}}`)

	items, err := l.GetItemsByCamlQueryAsync(s.ctx, CamlQueryOptions{ViewXML: "<View/>"}).Wait(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, items.Len())

	other := s.web.Lists.NewItem()
	other.Id = uuid.New()
	s.mock.On(http.MethodPost, "_api/Web/Lists(guid'"+other.Id.String()+"')/GetItems", http.StatusOK, `{"d":{"results":[{"Id":6},{"Id":7}]}}`)

	b := s.client.NewBatch()
	l.GetItemsByCamlQueryBatch(b, CamlQueryOptions{ViewXML: "<View/>"})
	other.GetItemsByCamlQueryBatch(b, CamlQueryOptions{ViewXML: "<View/>"})
	s.Equal(0, other.Items.Len())
	s.Require().NoError(s.client.Execute(s.ctx, b))
	s.Equal(2, other.Items.Len())
	s.Equal(1, l.Items.Len())
	s.Len(s.mock.Batches(), 1)
}

func (s *ListSuite) TestGetByTitle() {
	s.mock.On(http.MethodGet, "_api/web/lists/getbytitle('Bob''s list')?$select=Id,Title", http.StatusOK,
		`{"d":{"Id":"`+testListID+`","Title":"Bob's list"}}`)

	l, err := s.web.Lists.GetByTitle(s.ctx, "Bob's list", "Id", "Title")
	s.Require().NoError(err)
	s.Equal("Bob's list", l.Title)
	s.Equal(1, s.web.Lists.Len())

	s.mock.On(http.MethodGet, "_api/web/lists/getbytitle('Bob''s list')?$select=Id,Title", http.StatusOK,
		`{"d":{"Id":"`+testListID+`","Title":"Bob's list","Hidden":true}}`)
	again, err := s.web.Lists.GetByTitle(s.ctx, "Bob's list", "Id", "Title")
	s.Require().NoError(err)
	s.Same(l, again)
	s.True(l.Hidden)

	_, err = s.web.Lists.GetByTitle(s.ctx, "x", "Nope")
	s.True(spmodel.IsMetadataError(err))
}

func (s *ListSuite) TestBatchGetByTitle() {
	s.mock.On(http.MethodGet, "_api/web/lists/getbytitle('Tasks')", http.StatusOK, `{"d":{"Id":"`+testListID+`","Title":"Tasks"}}`)
	s.mock.On(http.MethodGet, "_api/web/lists/getbytitle('Docs')", http.StatusOK, `{"d":{"Id":"`+testRecycleID+`","Title":"Docs"}}`)

	b := s.client.NewBatch()
	byCollection := s.web.Lists.GetByTitleBatch(b, "Tasks")
	single := s.web.Lists.NewItem()
	single.GetByTitleBatch(b, "Docs")
	s.Require().NoError(s.client.Execute(s.ctx, b))

	l, ok := byCollection.Result.(*List)
	s.Require().True(ok)
	s.Equal("Tasks", l.Title)
	s.Equal("Docs", single.Title)
	s.Equal(uuid.MustParse(testRecycleID), single.Id)

	batches := s.mock.Batches()
	s.Require().Len(batches, 1)
	s.Equal(apimodels.SPORest, batches[0].Type)
}

func (s *ListSuite) TestRecycleBatch() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testListPath+"/recycle", http.StatusOK, `{"d":{"Recycle":"`+testRecycleID+`"}}`)

	b := s.client.NewBatch()
	r := l.RecycleBatch(b)
	s.Require().NoError(s.client.Execute(s.ctx, b))
	id, err := RecycleResult(r)
	s.Require().NoError(err)
	s.Equal(uuid.MustParse(testRecycleID), id)
	s.Equal(0, s.web.Lists.Len())
}

func (s *ListSuite) TestLoadLists() {
	s.mock.On(http.MethodGet, "_api/web/lists", http.StatusOK,
		`{"d":{"results":[{"Id":"`+testListID+`","Title":"Tasks","BaseTemplate":107},{"Id":"`+testRecycleID+`","Title":"Docs","BaseTemplate":101}]}}`)

	s.Require().NoError(s.web.Lists.Load(s.ctx))
	s.Equal(2, s.web.Lists.Len())
	docs, ok := s.web.Lists.Find(uuid.MustParse(testRecycleID))
	s.Require().True(ok)
	s.Equal(DocumentLibrary, docs.TemplateType)
	s.Same(s.web, docs.ParentModel())
}

func (s *ListSuite) TestWebGet() {
	s.mock.On(http.MethodGet, "_api/web", http.StatusOK,
		`{"d":{"Id":"`+testListID+`","Title":"Team","Url":"https://contoso.sharepoint.com/sites/team","Lists":{"__deferred":{}}}}`)
	s.Require().NoError(s.web.Get(s.ctx))
	s.Equal("Team", s.web.Title)
	s.Equal("https://contoso.sharepoint.com/sites/team", s.web.URL)

	s.client.Settings().GraphFirst = true
	call, err := s.web.GetCall("Title", "URL")
	s.Require().NoError(err)
	s.Equal(apimodels.Graph, call.Type)
	s.Equal("sites/contoso.sharepoint.com:/sites/team?$select=displayName,webUrl", call.Request)
}

func (s *ListSuite) TestRecycleMalformedIDKeepsList() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testListPath+"/recycle", http.StatusOK, `{"d":{"Recycle":"not-a-guid"}}`)

	id, err := l.Recycle(s.ctx)
	s.Require().Error(err)
	s.Equal(uuid.Nil, id)
	s.Equal(1, s.web.Lists.Len())

	b := s.client.NewBatch()
	r := l.RecycleBatch(b)
	s.Error(s.client.Execute(s.ctx, b))
	_, err = RecycleResult(r)
	s.Error(err)
	s.Equal(1, s.web.Lists.Len())
}

func (s *ListSuite) TestPartialGetKeepsEdits() {
	l := s.web.Lists.NewItem()
	l.Id = uuid.MustParse(testListID)
	s.mock.On(http.MethodGet, testListPath, http.StatusOK, `{"d":{"Title":"Tasks","BaseTemplate":100,"Description":"old"}}`)
	s.Require().NoError(l.Get(s.ctx))

	l.Title = "Renamed"
	s.mock.On(http.MethodGet, testListPath+"?$select=Description", http.StatusOK, `{"d":{"Description":"new"}}`)
	s.Require().NoError(l.Get(s.ctx, "Description"))
	s.Equal("new", l.Description)

	call, changed, err := l.UpdateCall()
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(`{"__metadata":{"type":"SP.List"},"Title":"Renamed"}`, call.JSONBody)
}
