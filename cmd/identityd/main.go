// identityd - Credential and Session Lifecycle Service
//
// This is the main entry point for identityd. It registers accounts,
// issues and rotates bearer/refresh token pairs, and guards owner-only
// profile access over a JSON HTTP API.
//
// Session events are recorded to the audit log and, when enabled,
// published to MQTT and written to InfluxDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/gray-logic-identity/internal/api"
	"github.com/nerrad567/gray-logic-identity/internal/audit"
	"github.com/nerrad567/gray-logic-identity/internal/auth"
	"github.com/nerrad567/gray-logic-identity/internal/events"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/postgres"
	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-identity/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/identityd.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting identityd",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close(log)

	codec, err := auth.NewTokenCodec(auth.Keys{
		Bearer:  []byte(cfg.Security.JWT.BearerSecret),
		Refresh: []byte(cfg.Security.JWT.RefreshSecret),
	})
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	sinks, closeSinks, err := buildSinks(cfg, st.audit, log)
	if err != nil {
		return err
	}
	defer closeSinks()

	dispatcher := events.NewDispatcher(cfg.Events.BufferSize, log, sinks...)
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()
	defer func() {
		stopDispatch()
		<-dispatchDone
		if dropped := dispatcher.Dropped(); dropped > 0 {
			log.Warn("session events dropped during run", "count", dropped)
		}
	}()

	sessions, err := auth.NewSessionService(auth.SessionDeps{
		Accounts: st.accounts,
		Codec:    codec,
		Config: auth.SessionConfig{
			BearerTTL:  cfg.BearerTTL(),
			RefreshTTL: cfg.RefreshTTL(),
		},
		Events: dispatcher,
	})
	if err != nil {
		return fmt.Errorf("creating session service: %w", err)
	}

	apiDeps := api.Deps{
		Config:    cfg.API,
		Logger:    log,
		Sessions:  sessions,
		Store:     st.health,
		StoreName: cfg.Store.Driver,
		Version:   version,
	}
	if cfg.Events.Audit {
		apiDeps.Audit = st.audit
	}

	apiServer, err := api.New(apiDeps)
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

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", apiServer.Addr(),
		"store", cfg.Store.Driver,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the config path from IDENTITY_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("IDENTITY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// stores holds the opened account and audit stores for the configured driver.
type stores struct {
	accounts auth.AccountRepository
	audit    audit.Repository
	health   api.HealthChecker
	closers  []func() error
}

// close releases the stores in reverse order of opening.
func (s *stores) close(log *logging.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error("error closing store", "error", err)
		}
	}
}

// openStores connects the account store selected by store.driver and the
// audit store beside it. PostgreSQL keeps the audit log in the same database;
// SQLite and Redis keep it in the SQLite file at database.path.
func openStores(ctx context.Context, cfg *config.Config, log *logging.Logger) (*stores, error) {
	st := &stores{}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.PostgresConnMaxLifetime(),
		})
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		st.closers = append(st.closers, db.Close)

		if err := postgres.Migrate(ctx, db, migrations.Postgres); err != nil {
			st.close(log)
			return nil, fmt.Errorf("running postgres migrations: %w", err)
		}
		log.Info("postgres connected, migrations complete")

		st.accounts = auth.NewPostgresAccountRepository(db)
		st.audit = audit.NewPostgresRepository(db)
		st.health = api.HealthCheckFunc(func(ctx context.Context) error {
			return postgres.HealthCheck(ctx, db)
		})
		return st, nil

	case config.DriverRedis:
		rdb, err := redis.Connect(ctx, redis.Config{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		st.closers = append(st.closers, rdb.Close)
		log.Info("redis connected", "addrs", cfg.Redis.Addrs, "key_prefix", cfg.Redis.KeyPrefix)

		db, err := openSQLite(ctx, cfg, log)
		if err != nil {
			st.close(log)
			return nil, err
		}
		st.closers = append(st.closers, db.Close)

		st.accounts = auth.NewRedisAccountRepository(rdb, cfg.Redis.KeyPrefix)
		st.audit = audit.NewSQLiteRepository(db.DB)
		st.health = redisHealth(rdb)
		return st, nil

	default:
		db, err := openSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, db.Close)

		st.accounts = auth.NewAccountRepository(db.DB)
		st.audit = audit.NewSQLiteRepository(db.DB)
		st.health = db
		return st, nil
	}
}

func redisHealth(rdb goredis.UniversalClient) api.HealthCheckFunc {
	return func(ctx context.Context) error {
		return redis.HealthCheck(ctx, rdb)
	}
}

// openSQLite opens the SQLite database and applies the embedded migrations.
func openSQLite(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Migrate(ctx, migrations.SQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database connected, migrations complete", "path", cfg.Database.Path)
	return db, nil
}

// buildSinks assembles the event sinks enabled in cfg. The returned func
// closes any sink connections.
func buildSinks(cfg *config.Config, auditRepo audit.Repository, log *logging.Logger) ([]events.Sink, func(), error) {
	var sinks []events.Sink
	var closers []func() error

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Error("error closing event sink", "error", err)
			}
		}
	}

	if cfg.Events.Audit {
		sinks = append(sinks, events.NewAuditSink(auditRepo))
	} else {
		log.Info("audit log disabled")
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		closers = append(closers, mqttClient.Close)
		sinks = append(sinks, events.NewMQTTSink(mqttClient))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		closers = append(closers, influxClient.Close)
		sinks = append(sinks, events.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	return sinks, closeAll, nil
}
