package site

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a router with the site registered", t, func() {
		r := chi.NewRouter()
		Register(r)

		Convey("Then / serves the landing page", func() {
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "DistriSchool Grade Service")
			So(w.Body.String(), ShouldContainSubstring, "/api-docs")
		})

		Convey("And other paths are not served", func() {
			req := httptest.NewRequest(http.MethodGet, "/index.css", http.NoBody)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})

	Convey("The embedded file system holds the index", t, func() {
		f, err := FS().Open("index.html")
		So(err, ShouldBeNil)
		So(f.Close(), ShouldBeNil)
	})
}
