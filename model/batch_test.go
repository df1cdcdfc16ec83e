package model

import (
	"net/http"
	"testing"

	"github.com/evergreen-ci/spmodel"
	"github.com/evergreen-ci/spmodel/apimodels"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBatch(t *testing.T) {
	Convey("With a client and a web holding folders", t, func() {
		client, mock := newTestClient(t)
		web := newTestWeb(client)
		one := web.Folders.NewItem()
		one.Id = 1
		two := web.Folders.NewItem()
		two.Id = 2
		So(web.Folders.Attach(one), ShouldBeNil)
		So(web.Folders.Attach(two), ShouldBeNil)

		mock.On(http.MethodGet, "_api/web/folders(1)", http.StatusOK, `{"d":{"Id":1,"Name":"one"}}`)
		mock.On(http.MethodGet, "_api/web/folders(2)", http.StatusOK, `{"d":{"Id":2,"Name":"two"}}`)
		mock.On(http.MethodGet, "sites/contoso.sharepoint.com:/sites/team", http.StatusOK, `{"id":"web-1","displayName":"Team"}`)

		Convey("requests of one protocol go out as one batch", func() {
			b := client.NewBatch()
			r1 := one.GetBatch(b)
			r2 := two.GetBatch(b)
			So(b.Len(), ShouldEqual, 2)
			So(r1.Done(), ShouldBeFalse)

			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(r1.Done(), ShouldBeTrue)
			So(r2.Err, ShouldBeNil)
			So(one.Name, ShouldEqual, "one")
			So(two.Name, ShouldEqual, "two")

			batches := mock.Batches()
			So(len(batches), ShouldEqual, 1)
			So(batches[0].Type, ShouldEqual, apimodels.SPORest)
			So(len(batches[0].Requests), ShouldEqual, 2)
			So(batches[0].Requests[0].Path, ShouldEqual, "_api/web/folders(1)")
			So(len(mock.Requests()), ShouldEqual, 0)
		})

		Convey("requests are grouped by protocol", func() {
			b := client.NewBatch()
			webCall := apimodels.NewAPICall(apimodels.Graph, http.MethodGet, "sites/{hostname}:{serverrelativepath}")
			rg := web.RequestBatch(b, webCall)
			one.GetBatch(b)
			two.GetBatch(b)

			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(rg.Err, ShouldBeNil)
			So(web.Title, ShouldEqual, "Team")

			batches := mock.Batches()
			So(len(batches), ShouldEqual, 1)
			So(batches[0].Type, ShouldEqual, apimodels.SPORest)
			requests := mock.Requests()
			So(len(requests), ShouldEqual, 1)
			So(requests[0].Type, ShouldEqual, apimodels.Graph)
		})

		Convey("groups go out in order of their first request and finish in submission order", func() {
			client.Settings().HTTP.RESTBatchSize = 1
			var finished []string
			b := client.NewBatch()
			oneCall, err := one.GetCall()
			So(err, ShouldBeNil)
			twoCall, err := two.GetCall()
			So(err, ShouldBeNil)
			webCall := apimodels.NewAPICall(apimodels.Graph, http.MethodGet, "sites/{hostname}:{serverrelativepath}")
			one.RequestBatchThen(b, oneCall, func() { finished = append(finished, "one") })
			web.RequestBatchThen(b, webCall, func() { finished = append(finished, "web") })
			two.RequestBatchThen(b, twoCall, func() { finished = append(finished, "two") })

			So(client.Execute(t.Context(), b), ShouldBeNil)
			requests := mock.Requests()
			So(len(requests), ShouldEqual, 3)
			So(requests[0].Path, ShouldEqual, "_api/web/folders(1)")
			So(requests[1].Path, ShouldEqual, "_api/web/folders(2)")
			So(requests[2].Type, ShouldEqual, apimodels.Graph)
			So(finished, ShouldResemble, []string{"one", "web", "two"})
		})

		Convey("groups are chunked by the configured size", func() {
			client.Settings().HTTP.RESTBatchSize = 1
			b := client.NewBatch()
			one.GetBatch(b)
			two.GetBatch(b)

			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(len(mock.Batches()), ShouldEqual, 0)
			So(len(mock.Requests()), ShouldEqual, 2)
		})

		Convey("each request records its own failure", func() {
			three := web.Folders.NewItem()
			three.Id = 3
			b := client.NewBatch()
			r1 := one.GetBatch(b)
			r3 := three.GetBatch(b)
			r0 := web.Folders.NewItem().GetBatch(b)

			err := client.Execute(t.Context(), b)
			So(err, ShouldNotBeNil)
			So(r1.Err, ShouldBeNil)
			So(one.Name, ShouldEqual, "one")
			So(spmodel.StatusCode(r3.Err), ShouldEqual, http.StatusNotFound)
			So(spmodel.IsMetadataError(r0.Err), ShouldBeTrue)
			So(r0.Done(), ShouldBeTrue)
			So(len(mock.Batches()[0].Requests), ShouldEqual, 2)
		})

		Convey("a failed round trip fails every request in it", func() {
			mock.BatchShouldFail = true
			b := client.NewBatch()
			r1 := one.GetBatch(b)
			r2 := two.GetBatch(b)

			So(client.Execute(t.Context(), b), ShouldNotBeNil)
			So(spmodel.IsTransportError(r1.Err), ShouldBeTrue)
			So(spmodel.IsTransportError(r2.Err), ShouldBeTrue)
			So(one.Name, ShouldEqual, "")
		})

		Convey("post-processing runs in submission order", func() {
			mock.On(http.MethodPost, "_api/web/folders(1)", http.StatusOK, "")
			b := client.NewBatch()
			one.GetBatch(b)
			r := one.DeleteBatch(b)

			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(r.Err, ShouldBeNil)
			So(one.Name, ShouldEqual, "one")
			So(web.Folders.Len(), ShouldEqual, 1)
			So(one.ParentCollection(), ShouldBeNil)
		})

		Convey("recycles return the identifier through the request", func() {
			mock.On(http.MethodPost, "_api/web/folders(2)/recycle", http.StatusOK, `{"d":{"Recycle":"abc"}}`)
			call := apimodels.NewAPICall(apimodels.SPORest, http.MethodPost, "_api/web/folders({Id})/recycle")
			call.ResultPath = "Recycle"
			call.RemovesEntity = true

			b := client.NewBatch()
			r := two.RemoveBatch(b, call, nil)
			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(r.Result, ShouldEqual, "abc")
			So(web.Folders.Len(), ShouldEqual, 1)
		})

		Convey("unchanged updates are not queued", func() {
			b := client.NewBatch()
			So(one.UpdateBatch(b), ShouldBeNil)
			So(b.Len(), ShouldEqual, 0)
		})

		Convey("a batch executes once", func() {
			b := client.NewBatch()
			one.GetBatch(b)
			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(b.Executed(), ShouldBeTrue)
			So(client.Execute(t.Context(), b), ShouldNotBeNil)

			late := two.GetBatch(b)
			So(late.Err, ShouldNotBeNil)
		})

		Convey("collections load inside a batch", func() {
			mock.On(http.MethodGet, "_api/web/folders", http.StatusOK, `{"d":{"results":[{"Id":4,"Name":"four"}]}}`)
			b := client.NewBatch()
			web.Folders.LoadBatch(b)
			one.GetBatch(b)

			So(client.Execute(t.Context(), b), ShouldBeNil)
			So(web.Folders.Len(), ShouldEqual, 3)
			four, ok := web.Folders.Find(4)
			So(ok, ShouldBeTrue)
			So(four.Name, ShouldEqual, "four")
		})
	})
}
