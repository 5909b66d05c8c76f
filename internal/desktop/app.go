// Package desktop wires the standalone data layer together: local store,
// repositories, session tracking, remote client, and the background sync
// scheduler, with graceful shutdown and a best-effort final sync on exit.
package desktop

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dealersoft/dealerdesk/internal/cryptox"
	"github.com/dealersoft/dealerdesk/internal/desktop/config"
	"github.com/dealersoft/dealerdesk/internal/desktop/models"
	"github.com/dealersoft/dealerdesk/internal/desktop/remote"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories"
	"github.com/dealersoft/dealerdesk/internal/desktop/repositories/settings"
	"github.com/dealersoft/dealerdesk/internal/desktop/session"
	"github.com/dealersoft/dealerdesk/internal/desktop/store"
	"github.com/dealersoft/dealerdesk/internal/desktop/sync"
	"github.com/dealersoft/dealerdesk/internal/logging"
)

const saltKey = "encryption_salt"

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	repos     *repositories.Bundle
	sessions  *session.Provider
	scheduler *sync.Scheduler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewFileLogger(cfg.LogPath)

	db, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	cipher, err := buildCipher(ctx, db, cfg.EncryptionSecret)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if cipher == nil {
		logger.Warn(ctx, "no encryption secret configured, document payloads stored in the clear")
	}

	repos := repositories.New(db, cipher)
	sessions := session.NewProvider()
	remoteClient := remote.NewClient(cfg.ServerEndpointAddr, sessions.Token, logger)
	engine := sync.NewEngine(db, repos, remoteClient, cipher, logger)
	scheduler := sync.NewScheduler(engine, logger, sync.SchedulerConfig{
		InitialDelay:  cfg.SyncInitialDelay,
		Interval:      cfg.SyncInterval,
		Timeout:       cfg.SyncTimeout,
		ShutdownGrace: cfg.ShutdownGrace,
	})

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		repos:     repos,
		sessions:  sessions,
		scheduler: scheduler,
	}, nil
}

// buildCipher derives the at-rest key from the installation secret and a
// per-installation salt generated once and kept in settings.
func buildCipher(ctx context.Context, db *sql.DB, secret string) (*cryptox.Cipher, error) {
	if secret == "" {
		return nil, nil
	}

	kv := settings.NewSQLiteRepository(db)
	saltHex, err := kv.Get(ctx, saltKey)
	if errors.Is(err, models.ErrNotFound) {
		raw := make([]byte, 16)
		if _, err := rand.Read(raw); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		saltHex = hex.EncodeToString(raw)
		if err := kv.Set(ctx, saltKey, saltHex); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, fmt.Errorf("corrupt stored salt: %w", err)
	}
	return cryptox.NewCipher(cryptox.DeriveKey([]byte(secret), salt))
}

// Sessions exposes the session provider so the shell can sign users in and
// out; Repos exposes the data layer driven directly by the UI.
func (app *App) Sessions() *session.Provider { return app.sessions }
func (app *App) Repos() *repositories.Bundle { return app.repos }

// Run starts the scheduler, follows session transitions, and blocks until
// ctx is canceled or an interrupt arrives. On the way out it performs a
// best-effort final sync bounded by the configured grace period.
func (app *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "starting app",
		"db", app.config.DatabasePath, "server", app.config.ServerEndpointAddr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sigs
		cancel()
	}()

	changes := app.sessions.Subscribe()
	go func() {
		for c := range changes {
			if c.Present {
				app.scheduler.OnSignIn(c.UserID)
			} else {
				app.scheduler.OnSignOut()
			}
		}
	}()

	// The desktop shell signs users in through Sessions(); a token in the
	// environment lets the standalone binary start a session on its own.
	if token := os.Getenv("DEALERDESK_SESSION_TOKEN"); token != "" {
		if err := app.sessions.SignIn(token); err != nil {
			app.logger.Warn(ctx, "startup session rejected", "error", err)
		}
	}

	<-ctx.Done()

	app.logger.Info(context.Background(), "shutting down")
	app.scheduler.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}
}
