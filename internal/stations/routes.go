package stations

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/railtail/station-tracker/internal/middleware"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.AdminAuth)
	r.Get("/", ListHandler)
	r.Get("/all", ListWithLocationsHandler)
	r.Post("/", CreateHandler)
	r.Put("/{id}", UpdateHandler)
	r.Delete("/{id}", DeleteHandler)

	return r
}
