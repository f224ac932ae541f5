// Command seed loads a YAML station manifest into the registry. Used to
// provision a district's stations in one pass instead of clicking through
// the admin console.
//
// Manifest format:
//
//	stations:
//	  - station_id: "85003"
//	    assigned_latitude: 12.9716
//	    assigned_longitude: 77.5946
//	    allowed_radius_meters: 300
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/goccy/go-yaml"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

var (
	manifestPath = flag.String("manifest", "", "Path to the station manifest YAML (required)")
	dsn          = flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: env DATABASE_URL)")
	dryRun       = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
	confirm      = flag.Bool("confirm", false, "Required to overwrite existing stations' geofence config")
)

type Manifest struct {
	Stations []StationEntry `yaml:"stations"`
}

type StationEntry struct {
	StationID           string  `yaml:"station_id"`
	AssignedLatitude    float64 `yaml:"assigned_latitude"`
	AssignedLongitude   float64 `yaml:"assigned_longitude"`
	AllowedRadiusMeters float64 `yaml:"allowed_radius_meters"`
}

var stationIDPattern = regexp.MustCompile(`^\d{5}$`)

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	if *manifestPath == "" {
		fatalf("--manifest is required")
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		fatalf("load manifest: %v", err)
	}
	if err := validate(manifest); err != nil {
		fatalf("validate manifest: %v", err)
	}
	fmt.Printf("Manifest OK: %d stations\n", len(manifest.Stations))

	if *dryRun {
		fmt.Println("Dry run; no writes performed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sqlDB, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer sqlDB.Close()

	inserted, updated, skipped, err := seed(ctx, sqlDB, manifest, *confirm)
	if err != nil {
		fatalf("seed: %v", err)
	}
	fmt.Printf("Done: %d inserted, %d updated, %d skipped\n", inserted, updated, skipped)
	if skipped > 0 && !*confirm {
		fmt.Println("(existing stations skipped; re-run with --confirm to overwrite their geofence config)")
	}
}

func loadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func validate(m *Manifest) error {
	if len(m.Stations) == 0 {
		return fmt.Errorf("manifest contains no stations")
	}
	seen := make(map[string]struct{}, len(m.Stations))
	for i, s := range m.Stations {
		if !stationIDPattern.MatchString(s.StationID) {
			return fmt.Errorf("station %d: station_id %q must be 5 digits", i, s.StationID)
		}
		if _, dup := seen[s.StationID]; dup {
			return fmt.Errorf("station %d: duplicate station_id %q", i, s.StationID)
		}
		seen[s.StationID] = struct{}{}
		if s.AssignedLatitude < -90 || s.AssignedLatitude > 90 {
			return fmt.Errorf("station %s: latitude %v out of range", s.StationID, s.AssignedLatitude)
		}
		if s.AssignedLongitude < -180 || s.AssignedLongitude > 180 {
			return fmt.Errorf("station %s: longitude %v out of range", s.StationID, s.AssignedLongitude)
		}
		if s.AllowedRadiusMeters < 0 {
			return fmt.Errorf("station %s: negative radius", s.StationID)
		}
	}
	return nil
}

func seed(ctx context.Context, db *sql.DB, m *Manifest, overwrite bool) (inserted, updated, skipped int64, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, 0, err
	}
	defer tx.Rollback()

	for _, s := range m.Stations {
		radius := s.AllowedRadiusMeters
		if radius == 0 {
			radius = 300
		}

		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM tracking.stations WHERE station_id = $1)`,
			s.StationID).Scan(&exists); err != nil {
			return 0, 0, 0, fmt.Errorf("check %s: %w", s.StationID, err)
		}

		switch {
		case !exists:
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tracking.stations
					(station_id, assigned_latitude, assigned_longitude, allowed_radius_meters, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, 'OFFLINE', NOW(), NOW())
			`, s.StationID, s.AssignedLatitude, s.AssignedLongitude, radius)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("insert %s: %w", s.StationID, err)
			}
			inserted++
		case overwrite:
			_, err := tx.ExecContext(ctx, `
				UPDATE tracking.stations
				SET assigned_latitude = $2,
				    assigned_longitude = $3,
				    allowed_radius_meters = $4,
				    updated_at = NOW()
				WHERE station_id = $1
			`, s.StationID, s.AssignedLatitude, s.AssignedLongitude, radius)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("update %s: %w", s.StationID, err)
			}
			updated++
		default:
			skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, err
	}
	return inserted, updated, skipped, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
