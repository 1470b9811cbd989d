package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oriys/hiisid/internal/config"
	"github.com/oriys/hiisid/internal/ioengine"
	"github.com/oriys/hiisid/internal/ioengine/sim"
	"github.com/oriys/hiisid/internal/logging"
	"github.com/oriys/hiisid/internal/manager"
	"github.com/oriys/hiisid/internal/ratelimit"
	"github.com/oriys/hiisid/internal/server"
)

// runSimulation replaces the real socket with the deterministic in-process
// sim engine, seeded by the SEED env var, and drives a short scripted
// client session against it: create a namespace, run one pipeline
// request, list namespaces, and exit. This is the Go analogue of
// hiisi-server/src/io/simulation.rs's role in the original test suite:
// exercising the same server glue without a real listening socket, with
// reproducible completion ordering for a given seed.
func runSimulation(cfg *config.Config, seed string) error {
	logging.InitStructured(cfg.Logging.Format, cfg.Logging.Level)
	logging.Op().Info("running in simulation mode", "seed", seed)

	if err := os.MkdirAll(cfg.DBPath, 0o755); err != nil {
		return fmt.Errorf("create db path: %w", err)
	}

	mgr, err := manager.New(cfg.DBPath, cfg.Cache.MaxMemoryResidentDBs, cfg.Cache.MaxConcurrentConns, cfg.Cache.MaxPageCacheSizeKB)
	if err != nil {
		return fmt.Errorf("create resource manager: %w", err)
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.TierConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
		})
	}

	svrCtx := server.NewContext(mgr, limiter, nil, cfg.DBPath)
	eng := sim.New[*server.Context](svrCtx)
	listenFD := eng.NewListener()
	server.Serve(eng, listenFD)

	requests := []string{
		"POST /v1/namespaces/simulate/create HTTP/1.1\r\nHost: default\r\n\r\n",
		bodyRequest(`{"baton":null,"requests":[{"type":"execute","stmt":{"sql":"SELECT 1","want_rows":true}}]}`),
		"GET /v1/namespaces HTTP/1.1\r\nHost: default\r\n\r\n",
	}

	ctx := context.Background()
	for i, raw := range requests {
		resp, err := simulateOneRequest(ctx, eng, listenFD, raw)
		if err != nil {
			return fmt.Errorf("request %d: %w", i, err)
		}
		logging.Op().Info("simulation step", "request", i, "response_status", strings.SplitN(resp, "\r\n", 2)[0])
	}

	logging.Op().Info("simulation complete")
	return nil
}

func bodyRequest(body string) string {
	return "POST /v2/pipeline HTTP/1.1\r\nHost: default\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
}

func simulateOneRequest(ctx context.Context, eng *sim.Engine[*server.Context], listenFD int, raw string) (string, error) {
	clientFD := eng.Connect(listenFD)

	var resp []byte
	done := false
	eng.Recv(clientFD, func(e ioengine.Engine[*server.Context], fd int, buf []byte, err error) {
		resp = append(resp, buf...)
		done = true
	})
	eng.Send(clientFD, []byte(raw), func(e ioengine.Engine[*server.Context], fd int, n int, err error) {})

	deadline := time.Now().Add(2 * time.Second)
	for !done && time.Now().Before(deadline) {
		if err := eng.RunOnce(ctx); err != nil {
			return "", err
		}
	}
	if !done {
		return "", fmt.Errorf("no response within the simulation's polling budget")
	}
	return string(resp), nil
}
