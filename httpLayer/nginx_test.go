package httpLayer_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/e1732a364fed/edgetunnel/httpLayer"
)

func TestNginxResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	httpLayer.NotFound.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rec.Code != http.StatusNotFound || rec.Body.String() != httpLayer.Nginx404_html {
		t.Log(rec.Code, rec.Body.String())
		t.FailNow()
	}
	if rec.Header().Get("Server") != httpLayer.NginxServer || len(rec.Header().Get("Date")) != len("Mon, 02 Jan 2006 15:04:05 GMT") {
		t.Log(rec.Header())
		t.FailNow()
	}
}
