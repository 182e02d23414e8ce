// Package app wires configuration into the stores and services shared by
// the API server and the CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"github.com/hasnin090/iq-sub003/internal/config"
	"github.com/hasnin090/iq-sub003/internal/database"
	"github.com/hasnin090/iq-sub003/internal/database/migration"
	"github.com/hasnin090/iq-sub003/internal/logging"
	"github.com/hasnin090/iq-sub003/internal/metrics"
	"github.com/hasnin090/iq-sub003/internal/repository/postgres"
	"github.com/hasnin090/iq-sub003/internal/scanner"
	"github.com/hasnin090/iq-sub003/internal/service"
	"github.com/hasnin090/iq-sub003/internal/session"
	"github.com/hasnin090/iq-sub003/internal/storage"
)

// App holds the opened resources. Remote and Storage stay nil when the
// remote store is not configured.
type App struct {
	Source   *sql.DB
	Remote   *sql.DB
	Storage  storage.Storage
	Sync     service.SyncService
	Cleanup  service.CleanupService
	Sessions session.Store

	redis *redis.Client
}

// New opens the source store (required), the optional remote store and
// bucket client, and builds the services. reg receives the sync counters.
func New(ctx context.Context, cfg *config.AppConfig, reg prometheus.Registerer, log *logging.Logger) (*App, error) {
	if log == nil {
		log = logging.Nop()
	}
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	a.Source, err = database.NewPostgres(cfg.Database, "source")
	if err != nil {
		return nil, fmt.Errorf("connect source database: %w", err)
	}

	a.Remote, err = database.OpenOptional(cfg.Remote, "remote")
	if err != nil {
		return nil, fmt.Errorf("connect remote database: %w", err)
	}
	if a.Remote != nil {
		if err := migration.EnsureMigrated(ctx, a.Remote, log, cfg.Remote.Host); err != nil {
			return nil, fmt.Errorf("migrate remote database: %w", err)
		}
	} else {
		log.Info("remote_database_disabled", map[string]any{"msg": "REMOTE_DB_* not set"})
	}

	if cfg.MinIO.Enabled() {
		a.Storage, err = storage.NewMinIO(cfg.MinIO, log.With("storage"))
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
	} else {
		log.Info("object_storage_disabled", map[string]any{"msg": "MINIO_* not set"})
	}

	rec, err := newRecorder(reg)
	if err != nil {
		return nil, err
	}

	txns := postgres.NewTransactionPostgres(a.Source)
	deps := service.SyncDeps{
		Scanner:      scanner.New(cfg.Uploads.AllowedExtensions, log.With("scanner")),
		Storage:      a.Storage,
		Transactions: txns,
		Source:       postgres.NewRowStorePostgres(a.Source),
		Metrics:      rec,
		Log:          log.With("sync"),
	}
	if a.Remote != nil {
		deps.Remote = postgres.NewRowStorePostgres(a.Remote)
	}
	a.Sync = service.NewSyncService(deps, service.SyncOptions{
		UploadsRoot: cfg.Uploads.Root,
		URLPrefix:   cfg.Uploads.URLPrefix,
		Bucket:      cfg.MinIO.Bucket,
		BatchSize:   cfg.Sync.BatchSize,
	})

	opts := service.CleanupOptions{
		UploadsRoot:           cfg.Uploads.Root,
		URLPrefix:             cfg.Uploads.URLPrefix,
		DecommissionedDomains: cfg.Cleanup.DecommissionedDomains,
	}
	if a.Storage != nil {
		opts.Provider = a.Storage
	}
	a.Cleanup = service.NewCleanupService(txns, opts, rec, log.With("cleanup"))

	a.Sessions, a.redis, err = NewSessionStore(cfg)
	if err != nil {
		return nil, err
	}

	ok = true
	return a, nil
}

func newRecorder(reg prometheus.Registerer) (metrics.Recorder, error) {
	if reg == nil {
		return metrics.Nop{}, nil
	}
	m, err := metrics.NewSync(reg)
	if err != nil {
		return nil, fmt.Errorf("register sync metrics: %w", err)
	}
	return m, nil
}

// ErrUnknownSessionBackend is returned for SESSION_BACKEND values other
// than "", "memory" and "redis".
var ErrUnknownSessionBackend = errors.New("unknown session backend")

// NewSessionStore builds the configured session store. The redis client,
// when one is opened, is returned so the caller can close it.
func NewSessionStore(cfg *config.AppConfig) (session.Store, *redis.Client, error) {
	switch cfg.Session.Backend {
	case "":
		return nil, nil, nil
	case "memory":
		return session.NewMemoryStore(cfg.Session.TTL), nil, nil
	case "redis":
		client, err := session.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return session.NewRedisStore(client, cfg.Session.TTL), client, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSessionBackend, cfg.Session.Backend)
	}
}

// Close releases every opened resource.
func (a *App) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.Remote != nil {
		_ = a.Remote.Close()
	}
	if a.Source != nil {
		_ = a.Source.Close()
	}
}
