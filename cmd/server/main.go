// Command server starts the AI Calculator HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/ai-calculator/internal/adapter/ai"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/cache"
	httpserver "github.com/fairyhunter13/ai-calculator/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-calculator/internal/adapter/retention"
	"github.com/fairyhunter13/ai-calculator/internal/app"
	"github.com/fairyhunter13/ai-calculator/internal/config"
	"github.com/fairyhunter13/ai-calculator/internal/domain"
	"github.com/fairyhunter13/ai-calculator/internal/service/ratelimiter"
	"github.com/fairyhunter13/ai-calculator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		slog.Error("prompt templates invalid", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var cl closers
	defer func() { cl.closeAll() }()

	// AI gateway: exits before serving when no backend can be selected.
	gateway, err := ai.Initialize(ctx, buildCandidates(cfg, &cl), buildGatewayOptions(cfg)...)
	if err != nil {
		if errors.Is(err, domain.ErrNoBackend) {
			slog.Error("no AI backend available; set GEMINI_API_KEY or Vertex credentials", slog.Any("error", err))
		} else {
			slog.Error("ai gateway init failed", slog.Any("error", err))
		}
		cl.closeAll()
		os.Exit(1)
	}

	// Optional Redis: shared response cache and shared rate limit buckets.
	var rdb *redis.Client
	if cfg.RedisEnabled() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		cl = append(cl, rdb.Close)
	}

	var respCache domain.ResponseCache = cache.NewMemory(cfg.CacheTTL)
	if cfg.CacheBackend == "redis" {
		if rdb == nil {
			slog.Warn("CACHE_BACKEND=redis without REDIS_URL; using in-memory cache")
		} else {
			respCache = cache.NewRedis(rdb, cfg.CacheTTL)
		}
	}
	slog.Info("response cache configured", slog.String("backend", cfg.CacheBackend), slog.Duration("ttl", cfg.CacheTTL))

	// Diagrams
	plotExec, docker := buildPlotExecutor(cfg, &cl)
	renderer, err := buildRenderer(cfg, plotExec)
	if err != nil {
		slog.Error("diagram output dir unavailable", slog.Any("error", err))
		os.Exit(1)
	}

	// Retention of generated files
	sweeper := retention.New(retention.Options{
		Dir:         cfg.GeneratedDir(),
		Patterns:    cfg.CleanupPatterns,
		Interval:    cfg.CleanupInterval,
		MaxAge:      cfg.CleanupMaxFileAge,
		MaxFiles:    cfg.CleanupMaxFiles,
		ErrorDelay:  cfg.CleanupErrorDelay,
		DeleteAfter: cfg.ServedFileTTL,
	})
	go sweeper.Run(ctx)
	slog.Info("retention scheduler started",
		slog.Duration("interval", cfg.CleanupInterval),
		slog.Duration("max_age", cfg.CleanupMaxFileAge),
		slog.Int("max_files", cfg.CleanupMaxFiles))

	// Usecases
	solveSvc := usecase.NewSolveService(gateway, renderer, respCache, sweeper, prompts)

	// Readiness
	var sandbox app.Pinger
	if docker != nil {
		sandbox = docker
	}
	redisCheck, sandboxCheck := app.BuildReadinessChecks(rdb, sandbox)

	// Rate limiting follows the quota of the selected backend.
	perMinute := cfg.RateLimitFor(string(gateway.Backend()))
	var limiter httpserver.Limiter
	if rdb != nil {
		if l := ratelimiter.NewRedisLuaLimiter(rdb, ratelimiter.NewBucketConfigFromPerMinute(perMinute)); l != nil {
			limiter = l
		}
	}

	srv := httpserver.NewServer(cfg, solveSvc, redisCheck, sandboxCheck)
	handler := app.BuildRouter(cfg, srv, limiter, perMinute)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting",
			slog.Int("port", cfg.Port),
			slog.String("backend", string(gateway.Backend())),
			slog.Bool("fallback", gateway.HasFallback()),
			slog.Int("rate_limit_per_min", perMinute))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
