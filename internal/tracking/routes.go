package tracking

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/railtail/station-tracker/internal/middleware"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/logs", LogsHandler)
	r.Post("/client-log", ClientLogHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.StationAuth)
		r.Post("/update", UpdateLocationHandler)
		r.Post("/batch", BatchUpdateHandler)
		r.Post("/heartbeat", HeartbeatHandler)
	})

	return r
}
