package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/noni/smptweaks/internal/config"
	"github.com/noni/smptweaks/internal/data/store"
	httpserver "github.com/noni/smptweaks/internal/http"
	httpH "github.com/noni/smptweaks/internal/http/handlers"
	"github.com/noni/smptweaks/internal/observability"
	"github.com/noni/smptweaks/internal/pkg/logger"
	"github.com/noni/smptweaks/internal/progression"
)

// Version is stamped into traces; the build may override it with -ldflags.
var Version = "dev"

type App struct {
	Log     *logger.Logger
	Cfg     config.Config
	Metrics *observability.Metrics
	Manager *progression.Manager
	Server  *httpserver.Server

	resolved     resolvedStore
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the progression manager and the admin server. A store that
// cannot be opened does not fail New; the manager starts degraded instead.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	metrics := observability.Init(log, cfg.Metrics.Enabled)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Otel.Enabled,
		ServiceName: "smptweaks",
		Environment: cfg.LogMode,
		Version:     Version,
		Endpoint:    cfg.Otel.Endpoint,
		Insecure:    cfg.Otel.Insecure,
		Headers:     cfg.Otel.Headers,
		SampleRatio: cfg.Otel.SampleRatio,
	})

	resolved, openErr := resolveStore(ctx, log, cfg, metrics)
	mgr := progression.NewManager(ctx, log, managerConfig(cfg, metrics), resolved.backend, openErr)
	if mgr.Degraded() && resolved.redis != nil {
		_ = resolved.redis.Close()
		resolved.redis = nil
	}

	server := httpserver.NewServer(cfg.HTTP.Addr, httpserver.RouterConfig{
		Log:                log,
		Metrics:            metrics,
		HealthHandler:      httpH.NewHealthHandler(mgr),
		ProgressionHandler: httpH.NewProgressionHandler(mgr, managerConfig(cfg, nil).Curve),
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Metrics:      metrics,
		Manager:      mgr,
		Server:       server,
		resolved:     resolved,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops: autosave and metric collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if !a.Manager.Degraded() {
		a.Manager.StartAutosave(ctx, a.Cfg.Workers.AutosaveInterval)
		if sample := a.resolved.poolSampler(); sample != nil {
			a.Metrics.StartPoolCollector(ctx, string(a.resolved.raw.Kind()), sample)
		}
	}
	a.Metrics.StartRedisCollector(ctx, a.Log, a.resolved.redis)
}

// Run serves the admin API until Close shuts the server down.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Admin server listening", "addr", a.Server.Addr())
	return a.Server.Run()
}

// Close stops the server, flushes online players and releases the store.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if a.Manager != nil {
		if err := a.Manager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("progression shutdown: %w", err))
		}
	}
	if a.resolved.redis != nil {
		if err := a.resolved.redis.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
		a.resolved.redis = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}

// Check opens the configured store, runs the startup sequence and reports the
// outcome without serving anything.
func Check(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Kind, error) {
	resolved, openErr := resolveStore(ctx, log, cfg, nil)
	began := time.Now()
	mgr := progression.NewManager(ctx, log, managerConfig(cfg, nil), resolved.backend, openErr)
	defer func() {
		_ = mgr.Shutdown(ctx)
		if resolved.redis != nil {
			_ = resolved.redis.Close()
		}
	}()
	kind := store.Kind(cfg.Store.Kind)
	if resolved.raw != nil {
		kind = resolved.raw.Kind()
	}
	if mgr.Degraded() {
		return kind, mgr.DegradedReason()
	}
	log.Debug("Store check passed", "kind", kind, "took", time.Since(began))
	return kind, nil
}
