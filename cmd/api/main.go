package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Triglit/flowgraph/internal/api"
	"github.com/Triglit/flowgraph/internal/config"
	"github.com/Triglit/flowgraph/internal/events"
	"github.com/Triglit/flowgraph/internal/logging"
	"github.com/Triglit/flowgraph/internal/mqtt"
	"github.com/Triglit/flowgraph/internal/remote"
	"github.com/Triglit/flowgraph/internal/session"
	"github.com/Triglit/flowgraph/internal/storage/sqlstore"
	"github.com/Triglit/flowgraph/internal/triggers"
	"github.com/Triglit/flowgraph/internal/version"
)

const readinessInterval = 15 * time.Second

// backend stores versions and triggers.
type backend interface {
	session.VersionStore
	triggers.API
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run starts the editor API and blocks until shutdown. Deferred cleanup runs
// before the exit code reaches main.
func run(args []string) int {
	fs := flag.NewFlagSet("flowgraph-api", flag.ContinueOnError)
	configPath := fs.String("config", envOr("FLOWGRAPH_CONFIG", "flowgraph.yaml"), "path to flowgraph.yaml")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := logging.Component("main")

	if err := config.LoadEnv(".env"); err != nil {
		log.WithError(err).Error("failed to load .env")
		return 1
	}

	cfg, err := config.LoadEditorConfig(*configPath)
	if err != nil {
		log.WithError(err).Errorf("failed to load %s", *configPath)
		return 1
	}

	if err := logging.Init(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    cfg.Log.File,
		Service: cfg.ServiceName(),
	}); err != nil {
		log.WithError(err).Error("failed to initialize logging")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, sqlStore, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("failed to open storage")
		return 1
	}
	if sqlStore != nil {
		defer sqlStore.Close()
		events.AddSink("sql", sqlStore)
	}
	defer events.RemoveSinks()

	var broker *mqtt.Client
	if cfg.MQTT.Enabled {
		url := cfg.MQTT.URL
		if url == "" {
			url = mqtt.BrokerURL()
		}
		hostname, _ := os.Hostname()
		broker = mqtt.NewClient(url, fmt.Sprintf("%s-%s-%d", cfg.ServiceName(), hostname, os.Getpid()))
		api.SetMQTTState(broker.Start(), true)
		events.AddSink("mqtt", mqtt.NewPublisher(broker, cfg.MQTTTopicPrefix()))
		defer broker.Disconnect()
	}

	if err := api.InitAuth(); err != nil {
		log.WithError(err).Error("failed to initialize auth")
		return 1
	}
	if !api.IsAuthEnabled() {
		log.Warn("basic auth disabled, set FLOWGRAPH_ADMIN_USER/FLOWGRAPH_ADMIN_PASS to enable")
	}
	if err := api.InitTLS(); err != nil {
		log.WithError(err).Error("failed to initialize TLS")
		return 1
	}
	api.InitMetrics()

	translators := triggers.NewTranslators()
	reconciler := triggers.NewReconciler(store, translators,
		triggers.WithMaxConcurrency(cfg.MaxConcurrency()),
		triggers.WithLogger(logging.Component("reconciler")),
	)
	sessions := session.NewRegistry(func(workflowID string) *session.Session {
		return session.New(workflowID, store, reconciler,
			session.WithTranslators(translators),
			session.WithLogger(logging.Component("session").WithField("workflow_id", workflowID)),
		)
	})

	opts := []api.Option{api.WithLogger(logging.Component("api"))}
	if sqlStore != nil {
		opts = append(opts, api.WithEventLog(sqlStore))
	}
	server := api.NewServer(sessions, cfg.ServiceName(), opts...)

	go watchReadiness(ctx, sqlStore, broker)

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", cfg.ServiceName()+" starting", map[string]interface{}{
		"service":  cfg.ServiceName(),
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"storage":  cfg.StorageDriver(),
	})

	err = server.ListenAndServe(ctx, cfg.Port())

	events.Emit("info", "system.shutdown", cfg.ServiceName()+" stopping", map[string]interface{}{
		"service": cfg.ServiceName(),
	})
	events.CloseAllSubscribers()

	if err != nil {
		log.WithError(err).Error("api server failed")
		return 1
	}
	return 0
}

// openBackend returns the configured store. The second value is set for SQL
// drivers, which also provide the event log.
func openBackend(ctx context.Context, cfg *config.EditorConfig, log *logrus.Entry) (backend, *sqlstore.Store, error) {
	switch cfg.StorageDriver() {
	case config.DriverRemote:
		key, err := cfg.RemoteAPIKey()
		if err != nil {
			return nil, nil, err
		}
		c := remote.New(cfg.Remote.BaseURL, key, cfg.RemoteTimeout(), remote.WithLogger(logging.Component("remote")))
		api.SetStorageState(true)
		api.SetRemoteBreaker(func() bool { return c.BreakerState() == "open" })
		log.WithField("base_url", cfg.Remote.BaseURL).Info("using remote workflow service")
		return c, nil, nil

	case config.DriverPostgres:
		dsn, err := sqlstore.PostgresDSNFromEnv()
		if err != nil {
			return nil, nil, err
		}
		return openSQL(ctx, sqlstore.Postgres, dsn, log)

	case config.DriverSQLite:
		return openSQL(ctx, sqlstore.SQLite, cfg.Storage.DSN, log)

	default:
		log.Warn("using in-memory storage, versions are lost on restart")
		return openSQL(ctx, sqlstore.SQLite, ":memory:", log)
	}
}

func openSQL(ctx context.Context, dialect sqlstore.Dialect, dsn string, log *logrus.Entry) (backend, *sqlstore.Store, error) {
	s, err := sqlstore.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, nil, err
	}
	api.SetStorageState(true)
	log.WithField("driver", dialect).Info("storage connected")
	return s, s, nil
}

// watchReadiness refreshes readiness until ctx is done.
func watchReadiness(ctx context.Context, store *sqlstore.Store, broker *mqtt.Client) {
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if store != nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			api.SetStorageState(store.Ping(pingCtx) == nil)
			cancel()
		}
		if broker != nil {
			api.SetMQTTState(broker.IsConnected(), true)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
