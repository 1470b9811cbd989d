package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oriys/hiisid/internal/config"
	"github.com/oriys/hiisid/internal/ioengine"
	"github.com/oriys/hiisid/internal/ioengine/epoll"
	"github.com/oriys/hiisid/internal/logging"
	"github.com/oriys/hiisid/internal/manager"
	"github.com/oriys/hiisid/internal/metrics"
	"github.com/oriys/hiisid/internal/ratelimit"
	"github.com/oriys/hiisid/internal/server"
)

// runServer is the production path: a real EPOLL reactor driving the
// pipeline endpoint on cfg.HTTPListenAddr, plus a net/http admin plane
// exposing /metrics on cfg.Metrics.Addr. Grounded on main.rs's
// server_loop (bind, ResourceManager::new, IO::new, serve, loop { run_once }).
func runServer(cfg *config.Config) error {
	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)

	if err := os.MkdirAll(cfg.DBPath, 0o755); err != nil {
		return fmt.Errorf("create db path: %w", err)
	}

	mgr, err := manager.New(cfg.DBPath, cfg.Cache.MaxMemoryResidentDBs, cfg.Cache.MaxConcurrentConns, cfg.Cache.MaxPageCacheSizeKB)
	if err != nil {
		return fmt.Errorf("create resource manager: %w", err)
	}

	var m server.Metrics
	var adminServer *http.Server
	if cfg.Metrics.Enabled {
		pm := metrics.New(cfg.Metrics.Namespace)
		m = pm
		mux := http.NewServeMux()
		mux.Handle("/metrics", pm.Handler())
		adminServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			logging.Op().Info("admin plane started", "addr", cfg.Metrics.Addr)
			if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Op().Error("admin plane stopped", "error", err)
			}
		}()
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.TierConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		})
	}

	svrCtx := server.NewContext(mgr, limiter, m, cfg.DBPath)

	eng, err := epoll.New[*server.Context](svrCtx)
	if err != nil {
		return fmt.Errorf("create io engine: %w", err)
	}
	defer eng.Shutdown()

	listenFD, err := epoll.Listen(cfg.HTTPListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPListenAddr, err)
	}
	defer eng.Close(listenFD)

	server.Serve(eng, listenFD)
	logging.Op().Info("hiisid started", "addr", cfg.HTTPListenAddr, "db_path", cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Op().Info("shutdown signal received", "signal", sig.String())
		cancel()
	}()

	if err := ioengine.Run[*server.Context](ctx, eng); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run io engine: %w", err)
	}

	if adminServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = adminServer.Shutdown(shutdownCtx)
	}
	return nil
}
