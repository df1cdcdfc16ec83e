package sharepoint

import (
	"net/http"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	"github.com/google/uuid"
)

const testItemsPath = "_api/web/lists(guid'" + testListID + "')/items"

func (s *ListSuite) TestAddItem() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testItemsPath, http.StatusCreated,
		`{"d":{"__metadata":{"type":"SP.Data.TasksListItem"},"Id":3,"Title":"Ship","Status":"Open","Priority":"High"}}`)

	item, err := l.Items.Add(s.ctx, "Ship", map[string]any{"Status": "Open", "Priority": "High"})
	s.Require().NoError(err)

	reqs := s.mock.Requests()
	s.Require().Len(reqs, 1)
	s.Equal(`{"__metadata":{"type":"SP.Data.TasksListItem"},"Priority":"High","Status":"Open","Title":"Ship"}`, string(reqs[0].Body))
	s.Equal(3, item.Id)
	s.Equal("Open", item.Values["Status"])
	s.Equal(1, l.Items.Len())
	s.Same(l, item.List())
}

func (s *ListSuite) TestAddItemNeedsEntityType() {
	l := s.web.Lists.NewItem()
	l.Id = uuid.MustParse(testListID)

	_, err := l.Items.Add(s.ctx, "Ship", nil)
	s.True(spmodel.IsMetadataError(err))
	s.Empty(s.mock.Requests())
}

func (s *ListSuite) TestAddItemBatch() {
	l := s.loadedList()
	s.mock.On(http.MethodPost, testItemsPath, http.StatusCreated, `{"d":{"Id":8,"Title":"Queued"}}`)

	b := s.client.NewBatch()
	item, r := l.Items.AddBatch(b, "Queued", nil)
	s.Equal(0, l.Items.Len())
	s.Require().NoError(s.client.Execute(s.ctx, b))
	s.NoError(r.Err)
	s.Equal(8, item.Id)
	s.Equal(1, l.Items.Len())
}

func (s *ListSuite) TestUpdateValues() {
	l := s.loadedList()
	item := l.Items.NewItem()
	item.Id = 3
	s.Require().NoError(l.Items.Attach(item))
	s.mock.On(http.MethodPost, testItemsPath+"(3)", http.StatusNoContent, "")

	s.Require().NoError(item.UpdateValues(s.ctx, map[string]any{"Status": "Done", "Effort": 5}))

	reqs := s.mock.Requests()
	s.Require().Len(reqs, 1)
	s.Equal(spmodel.MethodMerge, reqs[0].Headers[spmodel.HTTPMethodHeader])
	s.Equal("*", reqs[0].Headers[spmodel.IfMatchHeader])
	s.Equal(`{"__metadata":{"type":"SP.Data.TasksListItem"},"Effort":5,"Status":"Done"}`, string(reqs[0].Body))
	s.Equal("Done", item.Values["Status"])
}

func (s *ListSuite) TestUpdateValuesFailureKeepsValues() {
	l := s.loadedList()
	item := l.Items.NewItem()
	item.Id = 3
	item.Values["Status"] = "Open"
	s.mock.On(http.MethodPost, testItemsPath+"(3)", http.StatusConflict, "")

	s.Error(item.UpdateValues(s.ctx, map[string]any{"Status": "Done"}))
	s.Equal("Open", item.Values["Status"])
}

func (s *ListSuite) TestRecycleItem() {
	l := s.loadedList()
	item := l.Items.NewItem()
	item.Id = 3
	s.Require().NoError(l.Items.Attach(item))
	s.mock.On(http.MethodPost, testItemsPath+"(3)/recycle", http.StatusOK, `{"d":{"Recycle":"`+testRecycleID+`"}}`)

	id, err := item.Recycle(s.ctx)
	s.Require().NoError(err)
	s.Equal(uuid.MustParse(testRecycleID), id)
	s.Equal(0, l.Items.Len())
	s.Same(l, item.ParentModel())
}

func (s *ListSuite) TestLoadItemsFromGraph() {
	s.client.Settings().GraphFirst = true
	l := s.loadedList()
	s.mock.On(http.MethodGet, "sites/contoso.sharepoint.com:/sites/team:/lists/"+testListID+"/items", http.StatusOK,
		`{"@odata.context":"x","value":[{"@odata.etag":"1","id":"4","createdDateTime":"2024-05-01T08:00:00Z",
		"fields":{"@odata.etag":"1","Title":"Graph item","Priority":"Low"}}]}`)

	s.Require().NoError(l.Items.Load(s.ctx))
	s.True(l.Items.Loaded())
	item, ok := l.Items.Find(4)
	s.Require().True(ok)
	s.Equal("Graph item", item.Title)
	s.Equal(2024, item.Created.Year())
	s.Equal(map[string]any{"Priority": "Low"}, item.Values)
}

func (s *ListSuite) TestUpdateValuesBatch() {
	l := s.loadedList()
	item := l.Items.NewItem()
	item.Id = 3
	item.Values["Status"] = "Open"

	s.mock.On(http.MethodPost, testItemsPath+"(3)", http.StatusConflict, "")
	b := s.client.NewBatch()
	r := item.UpdateValuesBatch(b, map[string]any{"Status": "Done"})
	s.Equal("Open", item.Values["Status"])
	s.Error(s.client.Execute(s.ctx, b))
	s.Error(r.Err)
	s.Equal("Open", item.Values["Status"])

	s.mock.On(http.MethodPost, testItemsPath+"(3)", http.StatusNoContent, "")
	b = s.client.NewBatch()
	r = item.UpdateValuesBatch(b, map[string]any{"Status": "Done"})
	s.Require().NoError(s.client.Execute(s.ctx, b))
	s.NoError(r.Err)
	s.Equal("Done", item.Values["Status"])
}

func (s *ListSuite) TestItemWritesStayOnREST() {
	s.client.Settings().GraphFirst = true
	l := s.loadedList()
	s.mock.On(http.MethodGet, "sites/contoso.sharepoint.com:/sites/team:/lists/"+testListID+"/items", http.StatusOK,
		`{"value":[{"id":"4","fields":{"Title":"Old"}}]}`)
	s.Require().NoError(l.Items.Load(s.ctx))
	item, ok := l.Items.Find(4)
	s.Require().True(ok)

	item.Title = "New"
	call, changed, err := item.UpdateCall()
	s.Require().NoError(err)
	s.True(changed)
	s.Equal(apimodels.SPORest, call.Type)
	s.Equal(testItemsPath+"(4)", call.Request)
	s.Equal(spmodel.MethodMerge, call.Headers[spmodel.HTTPMethodHeader])
	s.Equal(`{"__metadata":{"type":"SP.ListItem"},"Title":"New"}`, call.JSONBody)

	del, err := item.DeleteCall()
	s.Require().NoError(err)
	s.Equal(apimodels.SPORest, del.Type)
	s.Equal(spmodel.MethodDelete, del.Headers[spmodel.HTTPMethodHeader])
}
