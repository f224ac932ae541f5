package geocode

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

var client = NewClient()

// ReverseHandler proxies a reverse-geocode lookup for the dashboard,
// keeping the provider's usage policy (rate limit, user agent) enforced
// server-side.
func ReverseHandler(w http.ResponseWriter, r *http.Request) {
	lat := r.URL.Query().Get("lat")
	lng := r.URL.Query().Get("lng")
	if lat == "" || lng == "" {
		http.Error(w, "Latitude and longitude required", http.StatusBadRequest)
		return
	}

	raw, err := client.ReverseGeocode(r.Context(), lat, lng)
	if err != nil {
		http.Error(w, "Geocoding failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func SetupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", ReverseHandler)
	return r
}
