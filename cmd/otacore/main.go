// otacore - firmware update orchestration for device fleets
//
// This is the main entry point for the otacore server. otacore keeps a
// catalogue of firmware images, tracks every device that has ever checked
// in, and steers connected devices onto the latest image over a persistent
// WebSocket channel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/ferrolink/otacore/migrations"

	"github.com/ferrolink/otacore/internal/api"
	"github.com/ferrolink/otacore/internal/device"
	"github.com/ferrolink/otacore/internal/firmware"
	"github.com/ferrolink/otacore/internal/hub"
	"github.com/ferrolink/otacore/internal/infrastructure/config"
	"github.com/ferrolink/otacore/internal/infrastructure/database"
	"github.com/ferrolink/otacore/internal/infrastructure/influxdb"
	"github.com/ferrolink/otacore/internal/infrastructure/logging"
	"github.com/ferrolink/otacore/internal/infrastructure/mqtt"
	"github.com/ferrolink/otacore/internal/orchestrator"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting otacore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Firmware catalogue: metadata rows plus on-disk artifacts
	store, err := firmware.NewStore(cfg.Storage.FirmwareDir)
	if err != nil {
		return fmt.Errorf("opening firmware store: %w", err)
	}
	firmwares := firmware.NewRegistry(firmware.NewSQLiteRepository(db.DB), store)
	firmwares.SetLogger(log)
	log.Info("firmware store ready", "dir", store.Dir())

	// Device fleet registry
	devices := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	devices.SetLogger(log)

	// Connection hub and orchestration engine
	connHub := hub.New()
	connHub.SetLogger(log)

	engine := orchestrator.New(devices, firmwares, connHub, cfg.PublicBaseURL())
	engine.SetLogger(log)

	// Connect to MQTT broker (optional event mirror)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		engine.SetNotifier(&mqttNotifier{client: mqttClient, log: log})
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional update-outcome telemetry)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		engine.SetRecorder(influxClient)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start the HTTP server (admin API, artifact downloads, device channel)
	server, err := api.New(api.Deps{
		Config:    cfg,
		Logger:    log,
		Devices:   devices,
		Firmwares: firmwares,
		Hub:       connHub,
		Engine:    engine,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting api server: %w", startErr)
	}
	defer func() {
		log.Info("stopping api server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing api server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, server, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server (closes device connections)
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("otacore stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OTACORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OTACORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, server *api.Server, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// mqttNotifier adapts the infrastructure MQTT client to the engine's
// Notifier interface. Publish failures are logged and dropped; the event
// mirror is best-effort and must never stall an update.
type mqttNotifier struct {
	client *mqtt.Client
	log    *logging.Logger
}

// DeviceEvent implements orchestrator.Notifier.
func (n *mqttNotifier) DeviceEvent(deviceID string, payload any) {
	n.publish(mqtt.DeviceEventTopic(deviceID), payload)
}

// FirmwareEvent implements orchestrator.Notifier.
func (n *mqttNotifier) FirmwareEvent(payload any) {
	n.publish(mqtt.FirmwareEventTopic(), payload)
}

func (n *mqttNotifier) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("encoding event payload", "topic", topic, "error", err)
		return
	}
	if err := n.client.PublishEvent(topic, data); err != nil {
		n.log.Warn("event publish failed", "topic", topic, "error", err)
	}
}
