// Package config loads the static per-cluster JSON configuration described
// in spec §6 ("Configuration"). The ring is fixed for a process's lifetime
// per spec §1's Non-goals, so this is read once at startup, not watched.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Quorum holds the replication factor and read/write quorum thresholds.
type Quorum struct {
	N int `json:"N"`
	R int `json:"R"`
	W int `json:"W"`
}

// Coordinator holds the cluster coordinator's listen ports: httpPort for
// its SSE/health HTTP surface, zmqPort for its C7 request/reply listener.
type Coordinator struct {
	HTTPPort int `json:"httpPort"`
	ZMQPort  int `json:"zmqPort"`
}

// Storage holds the per-node offset applied to each server's base port to
// derive its C7 listener port.
type Storage struct {
	ZMQPortOffset int `json:"zmqPortOffset"`
}

// Config is the static cluster-wide configuration every node, the
// coordinator, and every client load at startup (spec §6).
type Config struct {
	NumServers  int         `json:"numServers"`
	Servers     []int       `json:"servers"` // base HTTP port per node, index = node ordinal
	Quorum      Quorum      `json:"quorum"`
	Coordinator Coordinator `json:"coordinator"`
	Storage     Storage     `json:"storage"`

	HintedHandoffFlushInterval Duration `json:"hintedHandoffFlushInterval,omitempty"`
	ServerPoolHealthInterval   Duration `json:"serverPoolHealthInterval,omitempty"`
	SSEHealthInterval          Duration `json:"sseHealthInterval,omitempty"`
	ReplicaCallTimeout         Duration `json:"replicaCallTimeout,omitempty"`
}

// Duration marshals as a JSON number of milliseconds, so the static config
// file stays plain JSON (no duration-string parsing) while the rest of the
// codebase works with time.Duration.
type Duration time.Duration

// MarshalJSON encodes d as whole milliseconds.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

// UnmarshalJSON decodes d from whole milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// defaults mirror spec §6: N=3, R=2, W=2, 5 nodes, 30s hinted-handoff
// flush, 10s server-pool health, 5s SSE health, 1s replica call timeout.
func defaults() Config {
	return Config{
		NumServers: 5,
		Servers:    []int{8001, 8002, 8003, 8004, 8005},
		Quorum:     Quorum{N: 3, R: 2, W: 2},
		Coordinator: Coordinator{
			HTTPPort: 9000,
			ZMQPort:  9100,
		},
		Storage: Storage{ZMQPortOffset: 1000},

		HintedHandoffFlushInterval: Duration(30 * time.Second),
		ServerPoolHealthInterval:   Duration(10 * time.Second),
		SSEHealthInterval:          Duration(5 * time.Second),
		ReplicaCallTimeout:         Duration(time.Second),
	}
}

// Load reads the JSON config file at path over a copy of the spec's
// defaults, so an operator's file only needs to override what differs.
func Load(path string) (Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if len(cfg.Servers) != cfg.NumServers {
		return Config{}, fmt.Errorf("config: numServers=%d but servers has %d entries", cfg.NumServers, len(cfg.Servers))
	}
	if cfg.Quorum.N <= 0 || cfg.Quorum.N > cfg.NumServers {
		return Config{}, fmt.Errorf("config: quorum.N=%d must be in [1, %d]", cfg.Quorum.N, cfg.NumServers)
	}
	return cfg, nil
}

// ZMQPort returns the C7 replication-channel port for the node whose HTTP
// port is httpPort, derived by applying the configured offset.
func (c Config) ZMQPort(httpPort int) int {
	return httpPort + c.Storage.ZMQPortOffset
}
