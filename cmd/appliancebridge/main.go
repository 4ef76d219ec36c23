// Gray Logic Appliances - Home Connect bridge
//
// This is the main entry point for the appliance bridge. It connects cloud
// appliance events relayed over MQTT to the Gray Logic hub: each configured
// dryer or range hood is tracked as a device, its state is published as a
// retained snapshot, and hub commands are translated into cloud requests.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-appliances/migrations"

	"github.com/nerrad567/gray-logic-appliances/internal/api"
	"github.com/nerrad567/gray-logic-appliances/internal/audit"
	"github.com/nerrad567/gray-logic-appliances/internal/bridges/homeconnect"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-appliances/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting appliance bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort on shutdown
	log.Info("configuration loaded",
		"path", configPath,
		"appliances", len(cfg.Appliances.Devices),
		"level", cfg.Logging.Level,
	)

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	if schema, schemaErr := db.SchemaVersion(ctx); schemaErr == nil {
		log.Info("database ready", "path", db.Path(), "schema_version", schema)
	}

	store := homeconnect.NewSQLiteStateStore(db.DB)
	if startErr := store.Start(); startErr != nil {
		return fmt.Errorf("preparing state store: %w", startErr)
	}
	defer store.Close() //nolint:errcheck // Statements only; the database is closed separately

	// MQTT, with a retained offline health message as last will
	lwt, err := json.Marshal(homeconnect.NewLWTMessage(cfg.Appliances.BridgeID))
	if err != nil {
		return fmt.Errorf("encoding last will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{
		Topic:   mqtt.Topics{}.BridgeHealth(homeconnect.Protocol),
		Payload: lwt,
	})
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// InfluxDB (optional)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Appliance bridge
	bridge, err := startBridge(ctx, cfg, mqttClient, store, influxClient, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("stopping appliance bridge")
		bridge.Stop()
	}()

	// After a broker reconnect the retained LWT says offline; replace it.
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		if pubErr := bridge.PublishHealth(); pubErr != nil {
			log.Warn("failed to republish health", "error", pubErr)
		}
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// REST API and WebSocket
	checks := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		Bridge:  bridge,
		Audit:   audit.NewSQLiteRecorder(db.DB),
		Checks:  checks,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred calls run in reverse: API, bridge, InfluxDB, MQTT, store, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
