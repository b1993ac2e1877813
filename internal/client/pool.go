package client

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// healthPollInterval is how often a failed node is polled on /api/health to
// decide whether it has rehabilitated (spec §4.11's server pool contract).
const healthPollInterval = 10 * time.Second

// ServerPool is the client's round-robin view of the storage-node cluster.
// It never enumerates a server catalog on its own (spec §4.11's privacy
// rule is about List ids, but the pool itself is configured, not
// discovered); it only tracks which configured nodes are currently
// reachable.
type ServerPool struct {
	mu     sync.Mutex
	nodes  []string
	failed map[string]struct{}
	cursor int

	client *http.Client
	logger log.Logger
}

// NewServerPool wraps the given storage-node base URLs (e.g.
// "http://localhost:8001").
func NewServerPool(nodes []string, logger log.Logger) *ServerPool {
	return &ServerPool{
		nodes:  nodes,
		failed: make(map[string]struct{}),
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Next returns the next node to try in round-robin order among those not
// currently marked failed. If every node is marked failed, it falls back
// to the full list (spec §4.11) rather than reporting no nodes available.
func (p *ServerPool) Next() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.nodes) == 0 {
		return "", false
	}

	candidates := p.nodes
	if len(p.failed) < len(p.nodes) {
		candidates = make([]string, 0, len(p.nodes))
		for _, n := range p.nodes {
			if _, down := p.failed[n]; !down {
				candidates = append(candidates, n)
			}
		}
	}

	node := candidates[p.cursor%len(candidates)]
	p.cursor++
	return node, true
}

// MarkFailed flags node as unreachable after an I/O error, excluding it
// from Next until its health check succeeds.
func (p *ServerPool) MarkFailed(node string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[node] = struct{}{}
}

// MarkHealthy clears node's failed flag.
func (p *ServerPool) MarkHealthy(node string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, node)
}

func (p *ServerPool) failedNodes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.failed))
	for n := range p.failed {
		out = append(out, n)
	}
	return out
}

// checkHealth probes node's /api/health and reports whether it responded.
func (p *ServerPool) checkHealth(node string) bool {
	resp, err := p.client.Get(node + "/api/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "OK"
}

// Run polls every failed node every 10s until ctx is canceled, rehabilitating
// any that respond healthy again (spec §4.11).
func (p *ServerPool) Run(ctx context.Context) {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, node := range p.failedNodes() {
				if p.checkHealth(node) {
					level.Info(p.logger).Log("msg", "node rehabilitated", "node", node)
					p.MarkHealthy(node)
				}
			}
		}
	}
}
