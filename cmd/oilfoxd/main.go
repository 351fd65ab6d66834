// oilfoxd bridges OilFox tank sensors from the FoxInsights customer cloud
// onto MQTT, a local SQLite history and optionally InfluxDB.
//
// Configuration is read from configs/config.yaml (override with
// OILFOXD_CONFIG). The cloud account and device list live in the bridge
// file named by oilfox.config_file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nerrad567/oilfox-bridge/internal/api"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/config"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/database"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
	"github.com/nerrad567/oilfox-bridge/internal/tank"
	"github.com/nerrad567/oilfox-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// pruneInterval is how often readings and poll log entries past their
	// retention are removed.
	pruneInterval = 6 * time.Hour

	restoreTimeout = 10 * time.Second
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
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting oilfoxd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to load .env file", "error", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := tank.NewSQLiteRepository(db.DB)

	// The bridge file is read before connecting so the broker can hold the
	// bridge's health Last Will.
	var (
		bridgeCfg   *oilfox.Config
		mqttOptions []mqtt.Option
	)
	if cfg.OilFox.Enabled {
		bridgeCfg, err = oilfox.LoadConfig(cfg.OilFox.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading OilFox bridge config: %w", err)
		}
		log.Info("OilFox bridge config loaded",
			"path", cfg.OilFox.ConfigFile,
			"devices", len(bridgeCfg.Devices),
		)

		will, willErr := healthWill(bridgeCfg.Bridge.ID)
		if willErr != nil {
			return fmt.Errorf("building health will: %w", willErr)
		}
		mqttOptions = append(mqttOptions, mqtt.WithWill(will))
	}

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqttOptions...)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}

	// InfluxDB is optional; without it readings only go to SQLite.
	var levels tank.LevelWriter
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		levels = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		bridge *oilfox.Bridge
		inbox  *oilfox.Inbox
	)
	if bridgeCfg != nil {
		bridge, inbox, err = startBridge(ctx, cfg, bridgeCfg, repo, levels, mqttClient, reg, log)
		if err != nil {
			return fmt.Errorf("starting OilFox bridge: %w", err)
		}
		defer func() {
			log.Info("stopping OilFox bridge")
			bridge.Stop()
		}()
	} else {
		log.Info("OilFox bridge disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if bridge != nil {
		srv, srvErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Bridge:   bridge,
			Inbox:    inbox,
			Store:    repo,
			MQTT:     mqttClient,
			Gatherer: reg,
			Checks:   checks,
			Version:  version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating API server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	go runRetention(ctx, cfg, repo, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, bridge, InfluxDB,
	// MQTT, database.

	log.Info("oilfoxd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses OILFOXD_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("OILFOXD_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		check, ok := checks[name]
		if !ok {
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// healthWill is the retained offline health message the broker publishes
// for the bridge if the daemon dies without a clean shutdown.
func healthWill(bridgeID string) (mqtt.Will, error) {
	payload, err := oilfox.LWTPayload(bridgeID)
	if err != nil {
		return mqtt.Will{}, err
	}
	return mqtt.Will{Topic: oilfox.HealthTopic(bridgeID), Payload: payload, QoS: 1}, nil
}

// startBridge restores devices and starts polling.
//
// Devices come from two places: the bridge file and the devices adopted
// through discovery, which are kept in SQLite.
//
// Returns:
//   - *oilfox.Bridge: Running bridge
//   - *oilfox.Inbox: Discovery inbox for the API
//   - error: If the bridge file is invalid or the bridge fails to start
func startBridge(
	ctx context.Context,
	cfg *config.Config,
	bridgeCfg *oilfox.Config,
	repo *tank.SQLiteRepository,
	levels tank.LevelWriter,
	mqttClient *mqtt.Client,
	reg prometheus.Registerer,
	log *logging.Logger,
) (*oilfox.Bridge, *oilfox.Inbox, error) {
	recorder := tank.NewRecorder(repo, levels)
	recorder.SetLogger(log)

	mqttAdapter := &mqttBridgeAdapter{client: mqttClient}

	bridge, err := oilfox.NewBridge(oilfox.BridgeOptions{
		Config:     bridgeCfg,
		API:        oilfox.NewClient(oilfox.ClientConfig{Address: bridgeCfg.Account.Address}),
		MQTTClient: mqttAdapter,
		Readings:   recorder,
		Polls:      recorder,
		Metrics:    oilfox.NewMetrics(reg),
		Location:   cfg.Location(),
		Version:    version,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating bridge: %w", err)
	}

	inbox := oilfox.NewInbox(oilfox.InboxOptions{
		Adopter:   bridge,
		Store:     repo,
		Publisher: mqttAdapter,
		AutoAdopt: bridgeCfg.Discovery.AutoAdopt,
		Logger:    log,
	})
	if err := bridge.Register(oilfox.NewDiscoveryListener(inbox)); err != nil {
		bridge.Stop()
		return nil, nil, fmt.Errorf("registering discovery: %w", err)
	}

	for _, dev := range bridgeCfg.Devices {
		if _, err := bridge.AddDevice(dev); err != nil {
			log.Warn("device not added", "hwid", dev.HWID, "error", err)
		}
	}

	restoreCtx, cancel := context.WithTimeout(ctx, restoreTimeout)
	adopted, err := repo.ListDevices(restoreCtx)
	cancel()
	if err != nil {
		bridge.Stop()
		return nil, nil, fmt.Errorf("loading adopted devices: %w", err)
	}
	for _, dev := range adopted {
		if _, ok := bridge.Device(dev.HWID); ok {
			continue
		}
		if _, err := bridge.AddDevice(dev.Config()); err != nil {
			log.Warn("adopted device not restored", "hwid", dev.HWID, "error", err)
		}
	}

	if err := bridge.Start(ctx); err != nil {
		bridge.Stop()
		return nil, nil, fmt.Errorf("starting bridge: %w", err)
	}
	log.Info("OilFox bridge started",
		"bridge_id", bridge.ID(),
		"devices", bridge.DeviceCount(),
		"api", bridgeCfg.Account.Address,
	)

	return bridge, inbox, nil
}

// runRetention prunes history past its retention until ctx is cancelled.
func runRetention(ctx context.Context, cfg *config.Config, repo *tank.SQLiteRepository, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		pruneHistory(ctx, cfg, repo, log)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pruneHistory(ctx context.Context, cfg *config.Config, repo *tank.SQLiteRepository, log *logging.Logger) {
	if keep := cfg.ReadingsRetention(); keep > 0 {
		n, err := repo.PruneReadings(ctx, keep)
		if err != nil {
			log.Warn("pruning readings failed", "error", err)
		} else if n > 0 {
			log.Info("pruned readings", "count", n)
		}
	}
	if keep := cfg.PollLogRetention(); keep > 0 {
		n, err := repo.PrunePolls(ctx, keep)
		if err != nil {
			log.Warn("pruning poll log failed", "error", err)
		} else if n > 0 {
			log.Debug("pruned poll log", "count", n)
		}
	}
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements oilfox.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements oilfox.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements oilfox.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
