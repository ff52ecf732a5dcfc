package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/24Tech-io/nursepor-stable-sub008/pkg/config"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/database"
	"github.com/24Tech-io/nursepor-stable-sub008/pkg/redisclient"
)

// App holds the connections and services shared by the API server and the
// audit CLI.
type App struct {
	Cfg      *config.Config
	Log      *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Repos    Repos
	Services Services
}

// New opens connections and wires every service. Close releases them.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	var client *redis.Client
	if cfg.Redis.Enabled {
		client, err = redisclient.New(ctx, cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	a := &App{Cfg: cfg, Log: log, DB: db, Redis: client}
	a.Repos = wireRepos(db)
	a.Services, err = wireServices(cfg, log, db, client, a.Repos)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Start launches the background workers: the notifier queue and, when
// enabled, the audit scheduler.
func (a *App) Start(ctx context.Context) {
	a.Services.Notifier.Start(ctx, notifierQueueConfig(a.Cfg.Notifier, a.Log))
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Start(ctx)
	}
}

// Stop halts background workers. Events still buffered in the notifier are discarded.
func (a *App) Stop() {
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	a.Services.Notifier.Stop()
}

// Close releases connections.
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
