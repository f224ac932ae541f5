package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Post("/register", RegisterStationHandler)
	r.Post("/login", LoginStationHandler)
	r.Post("/auto-login", AutoLoginHandler)
	r.Post("/admin/login", AdminLoginHandler)

	return r
}
