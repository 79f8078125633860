package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/adforge/internal/api"
	"github.com/phrazzld/adforge/internal/config"
	"github.com/phrazzld/adforge/internal/platform/postgres"
	"github.com/phrazzld/adforge/internal/platform/redis"
	"github.com/phrazzld/adforge/internal/service"
	"github.com/phrazzld/adforge/internal/service/auth"
)

// application holds the server's shared dependencies so they can be closed
// together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	redis *goredis.Client
	db    *sql.DB

	jwtService auth.JWTService
	jobService service.JobService
}

// newApplication connects to the coordination store and the archive
// database and builds the service layer on top of them.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	var err error
	app.redis, err = redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Redis connection established", "key_prefix", cfg.Redis.KeyPrefix)

	app.db, err = postgres.Open(ctx, cfg.Database)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to connect to archive database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, app.db, logger); err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	// No emitter here: completions caused by API calls stay in the
	// completions set until a worker's sweeper delivers them.
	queue := redis.NewQueue(app.redis,
		redis.QueueConfigFrom(cfg.Redis, cfg.Queue),
		redis.WithLogger(logger))
	limiter := redis.NewRateLimiter(app.redis, cfg.Redis.KeyPrefix,
		redis.RateLimiterConfigFrom(cfg.RateLimit), logger)

	app.jobService, err = service.NewJobService(queue, postgres.NewJobArchiveStore(app.db), limiter, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run serves HTTP until ctx is cancelled.
func (app *application) Run(ctx context.Context) error {
	router := api.NewRouter(app.jobService, app.jwtService, app.logger)
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup closes the connections opened by newApplication.
func (app *application) cleanup() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("Error closing redis connection", "error", err)
		}
		app.redis = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
		app.db = nil
	}
	app.logger.Info("Application shutdown completed")
}
