// Package server wires configuration, persistence, remote storage and the
// identity provider into the HTTP API and the gRPC health endpoint, and runs
// them until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/exius/internal/logging"
	"github.com/dmitrijs2005/exius/internal/server/config"
	"github.com/dmitrijs2005/exius/internal/server/folders"
	"github.com/dmitrijs2005/exius/internal/server/identity"
	"github.com/dmitrijs2005/exius/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/exius/internal/server/services"
	"github.com/dmitrijs2005/exius/internal/server/storage"

	gs "github.com/dmitrijs2005/exius/internal/server/grpc"
	hs "github.com/dmitrijs2005/exius/internal/server/http"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	http   *hs.HTTPServer
	grpc   *gs.GRPCServer
}

// newStorage is a seam for tests.
var newStorage = func(ctx context.Context, c *config.Config) (storage.Storage, error) {
	switch c.StorageBackend {
	case config.StorageMemory:
		return storage.NewMemoryStorage(), nil
	case config.StorageS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			User:              c.S3RootUser,
			Password:          c.S3RootPassword,
			Bucket:            c.S3Bucket,
			Region:            c.S3Region,
			BaseEndpoint:      c.S3BaseEndpoint,
			ShareLinkValidity: c.ShareLinkValidity,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.Debug)

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := newStorage(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	gh, err := identity.NewGitHub(identity.GitHubConfig{
		AdminToken: c.GitHubAdminToken,
		Org:        c.GitHubOrg,
		BaseURL:    c.GitHubBaseURL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("identity init error: %w", err)
	}

	m := folders.NewMaterializer(store, logger)
	relays := services.NewRelayService(db, rm, m, logger)
	keys := services.NewSubjectKeyService(db, rm, m, logger)

	httpServer := hs.NewHTTPServer(hs.Options{
		Address:             c.HTTPAddr,
		SecretKey:           []byte(c.SecretKey),
		UploadTokenValidity: c.UploadTokenValidity,
		RequestTimeout:      c.RequestTimeout,
		Debug:               c.Debug,
	}, hs.Services{
		Relays:       relays,
		SubjectKeys:  keys,
		Uploads:      services.NewUploadService(keys, store, logger),
		Permissions:  services.NewPermissionService(gh, relays),
		Repositories: gh,
	}, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		http:   httpServer,
		grpc:   gs.NewGRPCServer(c.GRPCAddr, logger, db),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := app.http.Run(ctx); err != nil {
			app.logger.Error(ctx, "HTTP server failed", "error", err)
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.grpc.Run(ctx); err != nil {
			app.logger.Error(ctx, "gRPC server failed", "error", err)
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
