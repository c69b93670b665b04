package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-garage/migrations"
)

const migrationStatusTimeout = 5 * time.Second

// checkConfig loads and validates the configuration, then prints what the
// bridge would talk to. An existing history database reports its
// migration status.
func checkConfig(ctx context.Context, w io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	setup, err := garage.NewSetup(cfg.Garage)
	if err != nil {
		return err
	}

	p := setup.Profile
	fmt.Fprintf(w, "config:      %s\n", path)
	fmt.Fprintf(w, "door:        %s\n", setup.Name)
	if setup.LightName != "" {
		fmt.Fprintf(w, "light:       %s\n", setup.LightName)
	}
	fmt.Fprintf(w, "device:      %s\n", setup.Gate.BaseURL())
	fmt.Fprintf(w, "profile:     %s (structured: %t)\n", p.Kind, p.Structured)
	if setup.Gate.OAuth != nil {
		fmt.Fprintf(w, "oauth:       %s\n", setup.Gate.OAuth.SignatureMethod)
	}

	for _, ep := range []*garage.Endpoint{p.DoorOpen, p.DoorClose, p.DoorState, p.LightOn, p.LightOff, p.LightState} {
		if ep != nil {
			fmt.Fprintf(w, "  %-12s %-4s %s\n", ep.Name, ep.Method, ep.URL)
		}
	}

	if p.HasStates() {
		fmt.Fprintf(w, "polling:     every %s, stale after %s\n", setup.PollInterval, setup.StalenessWindow())
	} else {
		fmt.Fprintf(w, "polling:     none, doors settle after %s\n", setup.DoorOperation)
	}

	fmt.Fprintf(w, "mqtt:        %t\n", cfg.MQTT.Enabled)
	fmt.Fprintf(w, "api:         %t\n", cfg.API.Enabled)
	fmt.Fprintf(w, "homekit:     %t\n", cfg.HomeKit.Enabled)
	fmt.Fprintf(w, "history:     %t\n", cfg.Database.Enabled)
	if cfg.Database.Enabled {
		if err := printMigrationStatus(ctx, w, cfg.Database); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "influxdb:    %t\n", cfg.InfluxDB.Enabled)
	return nil
}

func printMigrationStatus(ctx context.Context, w io.Writer, cfg config.DatabaseConfig) error {
	if _, err := os.Stat(cfg.Path); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(w, "  database   %s (created on first run)\n", cfg.Path)
		return nil
	}

	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
		Migrations:  migrations.FS,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, migrationStatusTimeout)
	defer cancel()

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	fmt.Fprintf(w, "  database   %s (%d migrations applied, %d pending)\n", db.Path(), len(applied), len(pending))
	return nil
}
