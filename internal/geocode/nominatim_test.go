package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReverseGeocode_PassesThroughPayload(t *testing.T) {
	var gotUA, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"display_name":"Test Junction, Testville"}`))
	}))
	defer srv.Close()

	c := NewClient()
	c.baseURL = srv.URL

	raw, err := c.ReverseGeocode(context.Background(), "12.97", "77.59")
	if err != nil {
		t.Fatalf("ReverseGeocode: %v", err)
	}
	if !strings.Contains(string(raw), "Test Junction") {
		t.Errorf("payload not passed through: %s", raw)
	}
	if gotUA != "station-tracker-backend" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if !strings.Contains(gotQuery, "lat=12.97") || !strings.Contains(gotQuery, "lon=77.59") {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestReverseGeocode_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient()
	c.baseURL = srv.URL

	if _, err := c.ReverseGeocode(context.Background(), "0", "0"); err == nil {
		t.Error("expected error for upstream 503")
	}
}
