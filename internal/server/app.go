// Package server initializes and runs the charasync backend: PostgreSQL
// storage, the S3 file store, lobby fan-out, the gRPC endpoint and the
// metrics/health HTTP listener.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/server/config"
	"github.com/dmitrijs2005/charasync/internal/server/lobby"
	"github.com/dmitrijs2005/charasync/internal/server/metrics"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/charasync/internal/server/services"

	gs "github.com/dmitrijs2005/charasync/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	backend  lobby.Backend
	metrics  *metrics.Metrics
	records  *services.RecordService
	users    *services.UserService
	services gs.Services
}

// NewApp connects to the database, applies migrations and builds services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel, "json")

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, err := services.NewS3Store(ctx, c)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("s3 init error: %w", err)
	}

	backend, err := newLobbyBackend(ctx, c, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lobby backend error: %w", err)
	}

	users := services.NewUserService(db, rm, c, logger)
	records := services.NewRecordService(db, rm, c, logger)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		backend: backend,
		metrics: metrics.New(),
		records: records,
		users:   users,
		services: gs.Services{
			Users:     users,
			Records:   records,
			Files:     services.NewFileService(db, rm, store, logger),
			Relations: services.NewRelationService(db, rm, logger),
			Lobbies:   lobby.NewService(backend, logger),
		},
	}, nil
}

func newLobbyBackend(ctx context.Context, c *config.Config, logger logging.Logger) (lobby.Backend, error) {
	if c.RedisURL == "" {
		logger.Info(ctx, "lobbies kept in memory")
		return lobby.NewMemoryBackend(), nil
	}
	return lobby.NewRedisBackend(ctx, c.RedisURL, logger)
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.services, app.metrics, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "grpc server stopped", "error", err)
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context) {
	if app.config.MetricsAddr == "" {
		return
	}
	srv := &http.Server{
		Addr:              app.config.MetricsAddr,
		Handler:           app.metrics.Router(app.db.PingContext),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "metrics server stopped", "error", err)
	}
}

// Run serves until SIGINT/SIGTERM or ctx is done, then releases resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx)
	}()
	go func() {
		defer wg.Done()
		services.RunPurge(ctx, app.config.PurgeInterval, app.records, app.users, app.logger)
	}()

	wg.Wait()
	app.close(context.Background())
}

func (app *App) close(ctx context.Context) {
	if c, ok := app.backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			app.logger.Warn(ctx, "lobby backend close failed", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
