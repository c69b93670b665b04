package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-garage/internal/api"
	"github.com/nerrad567/gray-logic-garage/internal/bridges/garagemqtt"
	"github.com/nerrad567/gray-logic-garage/internal/garage"
	"github.com/nerrad567/gray-logic-garage/internal/history"
	"github.com/nerrad567/gray-logic-garage/internal/homekit"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-garage/internal/telemetry"
	"github.com/nerrad567/gray-logic-garage/migrations"
)

const hoursPerDay = 24

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // Startup wiring is linear
	log := logging.Default()
	log.Info("starting garage bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "site", cfg.Site.ID)

	setup, err := garage.NewSetup(cfg.Garage)
	if err != nil {
		return err
	}
	log.Info("device profile ready",
		"profile", setup.Profile.Kind,
		"device", setup.Gate.BaseURL(),
		"light", setup.LightName != "",
	)

	g, gctx := errgroup.WithContext(ctx)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// InfluxDB (optional)
	var points telemetry.PointWriter
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		points = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	sink := telemetry.NewSink(cfg.MQTT.DeviceID, m, points)

	// Device gate and controller
	gate := garage.NewGate(setup.Gate, nil)
	gate.SetLogger(log.Component("gate"))
	gate.SetObserver(sink)
	defer gate.Close()

	ctrl, err := garage.NewController(garage.ControllerOptions{
		Setup:        setup,
		Executor:     gate,
		Logger:       log.Component("garage"),
		PollObserver: sink,
	})
	if err != nil {
		return fmt.Errorf("creating controller: %w", err)
	}
	ctrl.Subscribe(sink)

	healthChecks := map[string]api.HealthChecker{}
	if influxClient != nil {
		healthChecks["influxdb"] = influxClient
	}

	// The recorder outlives polling so the last notifications are persisted.
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRecorder()

	// Event history (optional)
	var historyReader api.HistoryReader
	if cfg.Database.Enabled {
		store, closeDB, err := openHistory(ctx, cfg.Database, cfg.MQTT.DeviceID, log)
		if err != nil {
			return err
		}
		defer closeDB()
		healthChecks["database"] = store.db

		recorder := history.NewRecorder(store.Store, history.RecorderOptions{
			Retention: time.Duration(cfg.Database.RetentionDays) * hoursPerDay * time.Hour,
			Logger:    log.Component("history"),
		})
		ctrl.Subscribe(recorder)
		g.Go(func() error {
			recorder.Run(recorderCtx)
			return nil
		})
		historyReader = store.Store
	} else {
		log.Info("event history disabled")
	}

	// MQTT bridge (optional)
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		healthChecks["mqtt"] = mqttClient
		m.SetMQTTConnected(true)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, err := garagemqtt.NewBridge(garagemqtt.BridgeOptions{
			DeviceID:       cfg.MQTT.DeviceID,
			Version:        version,
			MQTTClient:     mqttClient,
			Controller:     ctrl,
			HealthInterval: time.Duration(cfg.MQTT.HealthInterval) * time.Second,
			QueueDepth:     gate.QueueDepth,
			Logger:         log.Component("bridge"),
		})
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		ctrl.Subscribe(bridge)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
			m.SetMQTTConnected(true)
			bridge.Resync()
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
			m.SetMQTTConnected(false)
		})

		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT bridge: %w", err)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// HomeKit (optional)
	if cfg.HomeKit.Enabled {
		accessories := homekit.NewAccessories(ctrl, cfg.Site.ID, version, log.Component("homekit"))
		ctrl.Subscribe(accessories)

		hkServer, err := homekit.NewServer(cfg.HomeKit, accessories, log.Component("homekit"))
		if err != nil {
			return fmt.Errorf("creating HomeKit server: %w", err)
		}
		g.Go(func() error {
			return hkServer.Run(gctx)
		})
	} else {
		log.Info("HomeKit disabled")
	}

	// REST API (optional)
	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Logger:       log.Component("api"),
			Controller:   ctrl,
			History:      historyReader,
			Gatherer:     registry,
			HealthChecks: healthChecks,
			QueueDepth:   gate.QueueDepth,
			Version:      version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		ctrl.Subscribe(apiServer)
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("REST API disabled")
	}

	// Adapters are subscribed, so the initial push reaches all of them.
	if err := ctrl.Start(gctx); err != nil {
		return fmt.Errorf("starting controller: %w", err)
	}
	defer ctrl.Stop()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-gctx.Done()
	log.Info("shutting down")

	ctrl.Stop()
	stopRecorder()
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("garage bridge stopped")
	return nil
}

// historyStore pairs the event store with the database it lives in.
type historyStore struct {
	*history.Store
	db *database.DB
}

// openHistory opens the SQLite database, applies migrations and binds a
// store to deviceID. The returned func closes the database.
func openHistory(ctx context.Context, cfg config.DatabaseConfig, deviceID string, log *logging.Logger) (*historyStore, func(), error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
		Migrations:  migrations.FS,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	closeDB := func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}

	if err := db.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	store, err := history.NewStore(db.DB, deviceID)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	log.Info("event history ready", "path", cfg.Path, "retention_days", cfg.RetentionDays)

	return &historyStore{Store: store, db: db}, closeDB, nil
}
