// Package app initializes and runs the vault daemon. It wires together the
// configuration, logging, metadata store, secure storage engine and
// integrity monitor, and handles graceful shutdown on OS signals.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/goose/v3"

	"github.com/pkozlov/sentryvault/internal/config"
	"github.com/pkozlov/sentryvault/internal/dbx"
	"github.com/pkozlov/sentryvault/internal/filex"
	"github.com/pkozlov/sentryvault/internal/integrity"
	"github.com/pkozlov/sentryvault/internal/keyring"
	"github.com/pkozlov/sentryvault/internal/logging"
	"github.com/pkozlov/sentryvault/internal/metadata"
	"github.com/pkozlov/sentryvault/internal/migrations"
	"github.com/pkozlov/sentryvault/internal/storage"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	keys    *keyring.Keyring
	engine  *storage.Engine
	monitor *integrity.Monitor
}

// monitorHook defers the frequency-control wiring: the responder is built
// before the monitor it escalates.
type monitorHook struct {
	m *integrity.Monitor
}

func (h *monitorHook) TightenInterval() {
	if h.m != nil {
		h.m.TightenInterval()
	}
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewJSON(os.Stdout, logging.ParseLevel(cfg.LogLevel))

	root, err := filex.EnsureDir(cfg.StorageRoot, "")
	if err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}

	passphrase := []byte(cfg.Passphrase)
	if len(passphrase) == 0 {
		passphrase, err = promptPassphrase(os.Stdout)
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
	}

	keys, err := keyring.Open(passphrase, root)
	if err != nil {
		return nil, fmt.Errorf("keyring init: %w", err)
	}

	db, err := dbx.OpenSQLite(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("db migrations: %w", err)
	}

	engine := storage.NewEngine(root, keys, metadata.NewSQLiteRepository(db), logger)

	registry, err := loadRegistry(ctx, cfg.ManifestPath, logger)
	if err != nil {
		return nil, err
	}

	hook := &monitorHook{}
	responder := integrity.NewLogResponder(logger, hook, engine)
	monitor := integrity.NewMonitor(integrity.Config{
		Root:           root,
		Interval:       cfg.ScanInterval,
		OfflineBackoff: cfg.OfflineBackoff,
	}, registry, responder, logger)
	hook.m = monitor

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		keys:    keys,
		engine:  engine,
		monitor: monitor,
	}, nil
}

// RunMigrations applies the embedded goose migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// Engine exposes the secure storage engine to embedding callers.
func (app *App) Engine() *storage.Engine { return app.engine }

// Monitor exposes the integrity monitor to embedding callers.
func (app *App) Monitor() *integrity.Monitor { return app.monitor }

func loadRegistry(ctx context.Context, path string, logger logging.Logger) (*integrity.Registry, error) {
	registry, err := integrity.LoadManifest(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn(ctx, "integrity manifest absent, monitoring an empty resource set", "path", path)
		return integrity.NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("integrity manifest: %w", err)
	}
	return registry, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts integrity monitoring and blocks until the context is cancelled
// or an OS signal arrives, then shuts everything down in order.
func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting sentryvault",
		"root", app.config.StorageRoot, "scan_interval", app.config.ScanInterval)

	app.initSignalHandler(cancelFunc)

	changes, unsubscribe := app.monitor.Subscribe()
	defer unsubscribe()

	if err := app.monitor.Initialize(ctx); err != nil {
		return fmt.Errorf("monitor init: %w", err)
	}

	for {
		select {
		case change := <-changes:
			app.logger.Info(ctx, "integrity state changed",
				"status", change.Status.String(),
				"threat_level", change.ThreatLevel.String())

		case <-ctx.Done():
			app.logger.Info(context.Background(), "shutting down")
			app.monitor.Shutdown()
			app.keys.Close()
			if err := app.db.Close(); err != nil {
				app.logger.Error(context.Background(), "db close failed", "error", err)
			}
			return nil
		}
	}
}
