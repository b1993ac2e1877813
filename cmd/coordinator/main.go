// Command coordinator runs the cluster coordinator (C10): the SSE fan-out
// hub storage nodes broadcast state changes to, and clients subscribe to.
// It holds no durable state and sits outside the write/read critical path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/config"
	"github.com/listring/listring/internal/coordinator"
)

func main() {
	var (
		configPath = flag.String("config", "cluster.json", "path to the static cluster configuration")
		logLevel   = flag.String("log-level", "info", "debug|info|warn|error")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}

	hub := coordinator.NewHub(logger)
	router := coordinator.NewRouter(hub, logger)
	server := coordinator.NewServer(fmt.Sprintf(":%d", cfg.Coordinator.HTTPPort), router, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level.Info(logger).Log("msg", "coordinator started", "httpPort", cfg.Coordinator.HTTPPort)
	if err := server.Run(ctx); err != nil {
		level.Error(logger).Log("msg", "coordinator exited with error", "err", err)
		os.Exit(1)
	}
}

func newLogger(levelName string) log.Logger {
	base := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	base = log.With(base, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var filter level.Option
	switch levelName {
	case "debug":
		filter = level.AllowDebug()
	case "warn":
		filter = level.AllowWarn()
	case "error":
		filter = level.AllowError()
	default:
		filter = level.AllowInfo()
	}
	return level.NewFilter(base, filter)
}
