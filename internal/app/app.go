package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/memstream-backend/internal/db"
	apphttp "github.com/yungbote/memstream-backend/internal/http"
	"github.com/yungbote/memstream-backend/internal/observability"
	"github.com/yungbote/memstream-backend/internal/platform/logger"
	"github.com/yungbote/memstream-backend/internal/repos"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Clients  Clients
	Repos    repos.Repos
	Services Services
	Server   *apphttp.Server
	Metrics  *observability.Metrics

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	cfg := LoadConfig()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := observability.NewMetrics()
	observability.SetCurrent(metrics)
	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "memstream-backend",
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	clients, err := wireClients(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	reposet := repos.Wire(theDB, log)

	services, err := wireServices(theDB, log, cfg, clients, reposet)
	if err != nil {
		log.Sync()
		return nil, err
	}

	handlers := wireHandlers(log, services, reposet, metrics)
	server := wireServer(log, handlers, metrics)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     services,
		Server:       server,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background pieces: the extraction worker and, when
// enabled, the queue intake runner.
func (a *App) Start() error {
	if a == nil || a.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Services.Worker.Start(); err != nil {
		return fmt.Errorf("start extraction worker: %w", err)
	}
	if a.Services.Intake != nil {
		if err := a.Services.Intake.Start(ctx); err != nil {
			return fmt.Errorf("start intake runner: %w", err)
		}
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Starting HTTP server", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Log.Warn("http shutdown failed", "error", err)
		}
	}
	if a.Services.Intake != nil {
		if err := a.Services.Intake.Stop(ctx); err != nil {
			a.Log.Warn("intake stop failed", "error", err)
		}
	}
	if a.Services.Worker != nil {
		a.Services.Worker.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Clients.Redis != nil {
		if err := a.Clients.Redis.Close(); err != nil {
			a.Log.Warn("redis close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
