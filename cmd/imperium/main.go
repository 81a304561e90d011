// Imperium is a device automation engine: it polls and bridges devices,
// keeps their point values in memory, applies point updates and pushes
// changes to websocket subscribers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mekatrol/imperium-core/internal/api"
	bridge "github.com/mekatrol/imperium-core/internal/bridges/mqtt"
	"github.com/mekatrol/imperium-core/internal/controllers/httpjson"
	"github.com/mekatrol/imperium-core/internal/controllers/mqttdevice"
	"github.com/mekatrol/imperium-core/internal/controllers/virtual"
	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/infrastructure/config"
	"github.com/mekatrol/imperium-core/internal/infrastructure/database"
	"github.com/mekatrol/imperium-core/internal/infrastructure/influxdb"
	"github.com/mekatrol/imperium-core/internal/infrastructure/logging"
	"github.com/mekatrol/imperium-core/internal/infrastructure/metrics"
	"github.com/mekatrol/imperium-core/internal/poller"
	"github.com/mekatrol/imperium-core/internal/scheduler"
	"github.com/mekatrol/imperium-core/internal/status"
	"github.com/mekatrol/imperium-core/internal/subscription"
	"github.com/mekatrol/imperium-core/internal/update"
	"github.com/mekatrol/imperium-core/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Loop names.
const (
	loopDevicePolling = "device_polling"
	loopMQTTManager   = "mqtt_manager"
	loopHousekeeping  = "housekeeping"
)

// httpDeviceTimeout bounds a single HTTP device request.
const httpDeviceTimeout = 10 * time.Second

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
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Imperium",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "read_only", cfg.Server.ReadOnly)

	stats, err := metrics.New(metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Address:   cfg.Metrics.Address,
		Namespace: cfg.Metrics.Namespace,
		Tags:      cfg.Metrics.Tags,
	}, log.Component("metrics"))
	if err != nil {
		return fmt.Errorf("creating metrics client: %w", err)
	}
	defer func() {
		if closeErr := stats.Close(); closeErr != nil {
			log.Error("error closing metrics client", "error", closeErr)
		}
	}()

	checks := make(map[string]api.HealthChecker)

	// Status reports are persisted only when a database is configured.
	var store status.Store
	if cfg.Database.Path != "" {
		db, dbErr := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if dbErr != nil {
			return fmt.Errorf("opening database: %w", dbErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", db.Path())
		store = status.NewSQLStore(db.DB)
		checks["database"] = db
	}
	reporter := status.NewReporter(log.Component("status"), store)

	registry := device.NewRegistry()
	registry.SetLogger(log.Component("registry"))

	hub := subscription.NewHub(subscription.Config{
		MaxMessageSize: int64(cfg.WebSocket.MaxMessageSize),
		PingInterval:   time.Duration(cfg.WebSocket.PingInterval) * time.Second,
		PongTimeout:    time.Duration(cfg.WebSocket.PongTimeout) * time.Second,
	}, log.Component("subscription"))
	hub.SetMetrics(stats)
	registry.AddListener(hub.HandleChange)

	if cfg.InfluxDB.Enabled {
		influx, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		registry.AddListener(influxdb.NewRecorder(influx).HandleChange)
		checks["influxdb"] = influx
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	hosts := bridge.NewHostSettings(hostsFromConfig(cfg.MQTT))
	manager := bridge.NewManager(bridge.Options{
		Config: bridge.Config{
			HostKey:     cfg.MQTT.HostKey,
			ClientID:    cfg.MQTT.ClientID,
			QoS:         byte(cfg.MQTT.QoS), // #nosec G115 -- validated to 0..2
			TopicFilter: cfg.MQTT.TopicFilter,
			StatusTopic: cfg.MQTT.StatusTopic,
		},
		Settings: hosts,
		Registry: registry,
		Logger:   log.Component("mqtt"),
		Metrics:  stats,
		Reporter: reporter,
	})
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()

	if err := registerControllers(registry, manager); err != nil {
		return err
	}
	if err := loadDevices(registry, cfg.Devices); err != nil {
		return err
	}
	log.Info("device registry initialised", "devices", len(cfg.Devices))

	updates := update.NewService(registry,
		update.WithReadOnly(cfg.Server.ReadOnly),
		update.WithLogger(log.Component("update")),
		update.WithReporter(reporter),
	)

	poll := poller.New(registry,
		poller.WithLogger(log.Component("poller")),
		poller.WithReporter(reporter),
		poller.WithConcurrency(cfg.Scheduler.PollConcurrency),
	)

	loops := []*scheduler.Loop{
		newLoop(loopDevicePolling, cfg.Scheduler.DevicePolling, poll.PollDevices, log, stats),
		newLoop(loopMQTTManager, cfg.Scheduler.MQTTManager, manager.Iteration, log, stats),
		newLoop(loopHousekeeping, cfg.Scheduler.Housekeeping, poll.Housekeeping, log, stats),
	}

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log.Component("api"),
		Registry: registry,
		Updates:  updates,
		Hub:      hub,
		Status:   reporter,
		MQTT:     manager,
		Loops:    loops,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete", "api", server.Addr())

	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			return runLoop(gctx, loop, reporter, log)
		})
	}
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		watchReload(gctx, configPath, hosts, log)
		return nil
	})

	err = g.Wait()

	// Deferred Close() calls run in reverse order: API server, MQTT,
	// InfluxDB, database, metrics.
	log.Info("shutdown signal received, cleaning up")
	if err != nil {
		return err
	}
	log.Info("Imperium stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IMPERIUM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IMPERIUM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// registerControllers registers the built-in controllers.
func registerControllers(registry *device.Registry, pub mqttdevice.Publisher) error {
	controllers := map[string]device.Controller{
		virtual.Key:    virtual.New(),
		httpjson.Key:   httpjson.New(&http.Client{Timeout: httpDeviceTimeout}),
		mqttdevice.Key: mqttdevice.New(pub),
	}
	for key, c := range controllers {
		if err := registry.AddController(key, c); err != nil {
			return fmt.Errorf("registering controller %q: %w", key, err)
		}
	}
	return nil
}

// newLoop creates a scheduler loop from its configuration.
func newLoop(name string, lc config.LoopConfig, iterate scheduler.Iteration, log *logging.Logger, stats *metrics.Client) *scheduler.Loop {
	loop := scheduler.New(scheduler.Config{
		Name:                 name,
		MaxConsecutiveErrors: lc.MaxConsecutiveErrors,
		ErrorDelay:           lc.ErrorDelay,
		SuccessDelay:         lc.SuccessDelay,
	}, iterate)
	loop.SetLogger(log.Component("scheduler"))
	loop.SetMetrics(stats)
	return loop
}

// runLoop runs loop until ctx ends. A loop that stops after repeated
// failures is reported and left stopped; the other loops keep running.
func runLoop(ctx context.Context, loop *scheduler.Loop, reporter *status.Reporter, log *logging.Logger) error {
	err := loop.Run(ctx)
	switch {
	case err == nil:
		return nil
	case scheduler.IsStopped(err):
		reporter.ReportItem(context.WithoutCancel(ctx), status.Item{
			Category: status.CategoryScheduler,
			Severity: status.SeverityFatal,
			Key:      loop.Name(),
			Message:  "loop " + loop.Name() + " stopped",
			Err:      err,
		})
		return nil
	default:
		log.Error("loop exited", "loop", loop.Name(), "error", err)
		return fmt.Errorf("loop %s: %w", loop.Name(), err)
	}
}
