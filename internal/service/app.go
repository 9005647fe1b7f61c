// File: internal/service/app.go
package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tistorylab/autopub/api/schemas"
	"github.com/tistorylab/autopub/internal/auth"
	"github.com/tistorylab/autopub/internal/browser"
	"github.com/tistorylab/autopub/internal/config"
	"github.com/tistorylab/autopub/internal/generate"
	"github.com/tistorylab/autopub/internal/publish"
	"github.com/tistorylab/autopub/internal/remote"
	"github.com/tistorylab/autopub/internal/scrape"
	"github.com/tistorylab/autopub/internal/server"
	"github.com/tistorylab/autopub/internal/store"
)

// App holds every long-lived component of the service, wired and ready
// to run.
type App struct {
	Config        *config.Config
	Store         *store.Store
	Provisioner   browser.Provisioner
	Authenticator *auth.Authenticator
	Publisher     *publish.Publisher
	Tasks         *publish.TaskManager
	Logins        *auth.LoginManager
	Server        *server.Server

	dbPool *pgxpool.Pool
	logger *zap.Logger
}

// BuildApp performs the full dependency injection for the service.
// Partially built components are torn down when a later step fails.
func BuildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Config: cfg, logger: logger}

	var initErr error
	defer func() {
		if initErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initErr))
			app.Close()
		}
	}()

	// 1. Database pool and store.
	if cfg.Database.URL == "" {
		initErr = fmt.Errorf("database URL is not configured (hint: check AUTOPUB_DATABASE_URL)")
		return nil, initErr
	}
	dbPool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		initErr = fmt.Errorf("failed to create database connection pool: %w", err)
		return nil, initErr
	}
	app.dbPool = dbPool

	dbStore, err := store.New(ctx, dbPool, logger)
	if err != nil {
		initErr = fmt.Errorf("failed to initialize store: %w", err)
		return nil, initErr
	}
	app.Store = dbStore
	logger.Debug("Store initialized.")

	// 2. Browser provisioner.
	if cfg.Remote.Enabled {
		client := remote.NewClient(cfg.Remote, logger)
		app.Provisioner = browser.NewRemoteProvisioner(cfg, client, logger)
		logger.Debug("Remote browser provisioner initialized.")
	} else {
		app.Provisioner = browser.NewLocalProvisioner(cfg, logger)
		logger.Debug("Local browser provisioner initialized.")
	}

	// 3. Authentication.
	app.Authenticator = auth.NewAuthenticator(dbStore, cfg.Tistory, logger)
	app.Logins = auth.NewLoginManager(app.Provisioner, app.Authenticator, cfg.Tistory, logger)

	// 4. Content generation.
	var generator generate.Generator
	if cfg.LLM.APIKey != "" {
		generator, err = generate.NewGeminiGenerator(ctx, cfg.LLM, logger)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize content generator: %w", err)
			return nil, initErr
		}
		logger.Debug("Content generator initialized.", zap.String("model", cfg.LLM.Model))
	} else {
		generator = disabledGenerator{}
		logger.Warn("No LLM API key configured; generation endpoints will reject requests.")
	}

	// 5. Publishing pipeline.
	app.Publisher = publish.NewPublisher(app.Provisioner, app.Authenticator, cfg, logger)
	app.Tasks = publish.NewTaskManager(generator, scrape.NewScraper(logger), app.Publisher, dbStore, logger)

	// 6. HTTP API.
	app.Server = server.NewServer(cfg.Server, app.Tasks, app.Logins, app.Authenticator, logger)

	logger.Info("All components initialized.")
	return app, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx)
}

// Close tears components down in reverse dependency order. Safe to call
// on a partially built app.
func (a *App) Close() {
	if a.Logins != nil {
		a.Logins.Close()
	}
	if a.Tasks != nil {
		a.Tasks.Close()
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

// disabledGenerator stands in when no LLM credentials are configured.
type disabledGenerator struct{}

func (disabledGenerator) Generate(ctx context.Context, req generate.Request) (*schemas.GeneratedContent, error) {
	return nil, fmt.Errorf("content generation is disabled: llm.api_key is not configured")
}
