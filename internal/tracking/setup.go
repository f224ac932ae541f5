package tracking

import (
	"log"
	"log/slog"

	"github.com/railtail/station-tracker/internal/db"
)

// Coord applies single and batch location updates. Set by Init.
var Coord *Coordinator

// Logger is the tracking package's structured logger. Set by Init.
var Logger *slog.Logger

func Init(hub Notifier, logger *slog.Logger) {
	if err := db.EnsureSchema(db.DB, "tracking"); err != nil {
		log.Fatal("Failed to ensure schema tracking: ", err)
	}

	if err := db.DB.AutoMigrate(&Station{}, &CurrentLocation{}, &LocationLogEntry{}); err != nil {
		log.Fatal("Failed to auto-migrate tables", err)
	}

	Logger = logger
	Coord = NewCoordinator(db.DB, hub, logger)
}
