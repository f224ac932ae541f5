package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/railtail/station-tracker/internal/analytics"
	"github.com/railtail/station-tracker/internal/auth"
	"github.com/railtail/station-tracker/internal/db"
	"github.com/railtail/station-tracker/internal/geocode"
	"github.com/railtail/station-tracker/internal/live"
	"github.com/railtail/station-tracker/internal/logging"
	"github.com/railtail/station-tracker/internal/middleware"
	"github.com/railtail/station-tracker/internal/stations"
	"github.com/railtail/station-tracker/internal/tracking"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Station Tracker backend running")
}

func main() {
	_ = godotenv.Load(".env.local")

	logger := logging.New()

	db.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = "5001"
	}
	if origin := os.Getenv("DASHBOARD_ORIGIN"); origin != "" {
		middleware.AllowOrigin(origin)
	}

	hub := live.NewHub(logger)

	auth.Init()
	tracking.Init(hub, logger)

	reconciler := tracking.NewReconciler(db.DB, hub, logger)
	go reconciler.Run(context.Background())

	r := chi.NewRouter()
	r.Use(middleware.CORSMiddleware)
	r.Get("/", RootHandler)
	r.Get("/ws", hub.ServeWS)

	r.Mount("/api/auth", auth.SetupRoutes())
	r.Mount("/api/location", tracking.SetupRoutes())
	r.Mount("/api/stations", stations.SetupRoutes())
	r.Mount("/api/analytics", analytics.SetupRoutes())
	r.Mount("/api/geocode", geocode.SetupRoutes())

	logger.Info("server listening", "port", port)

	if err := http.ListenAndServe("0.0.0.0:"+port, r); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
