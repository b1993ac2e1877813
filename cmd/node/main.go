// Command node runs one storage-node replica (C9): the REST API, the
// vector-clock write state machine, quorum replication, hinted handoff, and
// the gossip/anti-entropy background loops described in SPEC_FULL.md.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/listring/listring/internal/config"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/gossip"
	"github.com/listring/listring/internal/httpapi"
	"github.com/listring/listring/internal/node"
	"github.com/listring/listring/internal/quorum"
	"github.com/listring/listring/internal/ring"
	"github.com/listring/listring/internal/storage"
	"github.com/listring/listring/internal/transport"
)

func main() {
	var (
		configPath   = flag.String("config", "cluster.json", "path to the static cluster configuration")
		index        = flag.Int("index", 0, "this node's ordinal into config.servers")
		dataPath     = flag.String("data", "node.db", "path to this node's bbolt store")
		coordinator  = flag.String("coordinator", "http://localhost:9000", "base URL of the cluster coordinator")
		metricsAddr  = flag.String("metrics-addr", "", "address to expose Prometheus metrics on, e.g. :9102 (empty disables)")
		logLevel     = flag.String("log-level", "info", "debug|info|warn|error")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to load config", "err", err)
		os.Exit(1)
	}
	if *index < 0 || *index >= len(cfg.Servers) {
		level.Error(logger).Log("msg", "index out of range", "index", *index, "numServers", len(cfg.Servers))
		os.Exit(1)
	}

	nodeID := fmt.Sprintf("node-%d", *index)
	httpPort := cfg.Servers[*index]
	zmqPort := cfg.ZMQPort(httpPort)
	logger = log.With(logger, "nodeId", nodeID)

	nodeIDs, addrs := clusterTopology(cfg)
	r, err := ring.New(nodeIDs, cfg.Quorum.N, cfg.Quorum.R, cfg.Quorum.W)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build ring", "err", err)
		os.Exit(1)
	}
	if r.QuorumUnderprovisioned() {
		level.Warn(logger).Log("msg", "quorum underprovisioned: R+W<=N", "R", cfg.Quorum.R, "W", cfg.Quorum.W, "N", cfg.Quorum.N)
	}

	store, err := storage.Open(*dataPath)
	if err != nil {
		level.Error(logger).Log("msg", "failed to open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := adoptPersistedNodeID(store, nodeID); err != nil {
		level.Warn(logger).Log("msg", "failed to persist node id", "err", err)
	}

	items := domain.NewItemSet(nodeID)
	if err := bootstrapItemSet(store, items); err != nil {
		level.Error(logger).Log("msg", "failed to load persisted items", "err", err)
		os.Exit(1)
	}

	channel := transport.NewChannel()
	peerAddr := func(id string) (string, bool) {
		addr, ok := addrs[id]
		return addr, ok
	}

	members := gossip.NewMemberList(nodeID, addrs[nodeID], 15*time.Second)
	for _, id := range nodeIDs {
		if id == nodeID {
			continue
		}
		members.AddSeed(id, addrs[id])
	}

	coord := quorum.New(r, channel, peerAddr, time.Duration(cfg.ReplicaCallTimeout))
	broadcaster := node.NewHTTPBroadcaster(*coordinator, logger)

	writes, reads, quorumErrors := metricCounters(*metricsAddr)
	svc := node.NewService(nodeID, items, store, coord, broadcaster, logger)
	svc = node.NewLoggingService(svc, logger)
	svc = node.NewMetricsService(svc, writes, reads, quorumErrors)

	gossipLoop := node.NewGossipLoop(members, channel, logger)
	antiEntropyLoop := node.NewAntiEntropyLoop(nodeID, store, items, members, channel, logger)
	handoff := node.NewHandoffFlusher(store, channel, peerAddr, logger)

	listener, err := transport.Listen(fmt.Sprintf(":%d", zmqPort), dispatch(svc, gossipLoop, antiEntropyLoop), logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to start peer listener", "err", err)
		os.Exit(1)
	}
	defer listener.Close()

	router := httpapi.NewRouter(svc, logger)
	server := httpapi.NewServer(fmt.Sprintf(":%d", httpPort), router, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Serve(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { gossipLoop.Run(gctx, 5*time.Second); return nil })
	g.Go(func() error { antiEntropyLoop.Run(gctx, 30*time.Second); return nil })
	g.Go(func() error { handoff.Run(gctx, time.Duration(cfg.HintedHandoffFlushInterval)); return nil })
	if *metricsAddr != "" {
		g.Go(func() error { return runMetricsServer(gctx, *metricsAddr, logger) })
	}

	level.Info(logger).Log("msg", "node started", "httpPort", httpPort, "zmqPort", zmqPort)
	if err := g.Wait(); err != nil {
		level.Error(logger).Log("msg", "node exited with error", "err", err)
		os.Exit(1)
	}
}

// dispatch routes an inbound C7 envelope to the gossip, anti-entropy or
// replication handler by message type, so internal/node's replication state
// machine (service.go/replication.go) never needs to know these background
// loops exist.
func dispatch(svc node.Service, g *node.GossipLoop, a *node.AntiEntropyLoop) transport.Handler {
	return func(msg transport.Message) transport.Message {
		switch msg.Type {
		case transport.MsgGossip:
			return g.HandleGossip(msg)
		case transport.MsgAntiEntropy:
			return a.HandleAntiEntropy(msg)
		default:
			return svc.HandlePeerMessage(msg)
		}
	}
}

// clusterTopology derives every node's id and its C7 listener address from
// the static config; ids and ports are paired by index (spec §6
// Configuration: "ordered list of servers ports").
func clusterTopology(cfg config.Config) (ids []string, addrs map[string]string) {
	addrs = make(map[string]string, len(cfg.Servers))
	for i, port := range cfg.Servers {
		id := fmt.Sprintf("node-%d", i)
		ids = append(ids, id)
		addrs[id] = fmt.Sprintf("127.0.0.1:%d", cfg.ZMQPort(port))
	}
	return ids, addrs
}

func adoptPersistedNodeID(store *storage.Store, nodeID string) error {
	existing, err := store.NodeID()
	if err != nil {
		return err
	}
	if existing == "" {
		return store.SaveNodeID(nodeID)
	}
	return nil
}

func bootstrapItemSet(store *storage.Store, items *domain.ItemSet) error {
	all, err := store.AllItems()
	if err != nil {
		return err
	}
	for _, item := range all {
		items.Add(item)
	}
	return nil
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

// metricCounters builds the three go-kit counters node.NewMetricsService
// needs, backed by real Prometheus counters when metrics are enabled and by
// discard.NewCounter otherwise (go-pluto's NewPlutoMetrics pattern).
func metricCounters(metricsAddr string) (writes, reads, quorumErrors metrics.Counter) {
	if metricsAddr == "" {
		return discard.NewCounter(), discard.NewCounter(), discard.NewCounter()
	}
	writes = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "listring",
		Subsystem: "node",
		Name:      "writes_total",
		Help:      "Number of write operations handled by this node.",
	}, nil)
	reads = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "listring",
		Subsystem: "node",
		Name:      "reads_total",
		Help:      "Number of read operations handled by this node.",
	}, nil)
	quorumErrors = kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: "listring",
		Subsystem: "node",
		Name:      "quorum_errors_total",
		Help:      "Number of operations that failed to reach quorum.",
	}, nil)
	return writes, reads, quorumErrors
}

func runMetricsServer(ctx context.Context, addr string, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	level.Info(logger).Log("msg", "prometheus handler listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
