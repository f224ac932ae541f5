package analytics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/railtail/station-tracker/internal/middleware"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/status", StatusDistributionHandler)
	r.Get("/daily", DailyViolationsHandler)
	r.Get("/top", TopViolatorsHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuth)
		r.Get("/export", ExportHandler)
	})

	return r
}
