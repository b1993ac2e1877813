package client

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/storage"
)

// sseHealthProbe and sseReconnectDelay are the SSE connection's own
// timers, independent of the server pool's health polling (spec §4.11:
// "An SSE connection has its own 5s health-check probe and its own
// reconnection timer").
const (
	sseHealthProbe    = 5 * time.Second
	sseReconnectDelay = 5 * time.Second
)

// eventScope maps a coordinator event name to the FieldScope its merge
// should use (spec §4.11: "for toggle only merge acquired...; for quantity
// merge both counters; for name apply LWW").
var eventScope = map[string]domain.FieldScope{
	"item-toggled":          domain.ScopeAcquired,
	"item-quantity-updated": domain.ScopeQuantity,
	"item-name-updated":     domain.ScopeName,
	"item-added":            domain.ScopeAll,
	"item-updated":          domain.ScopeAll,
}

// SSEConsumer subscribes to the cluster coordinator's event stream and
// folds incoming events into local state, skipping any entity the client
// has never loaded (spec §4.11's privacy boundary).
type SSEConsumer struct {
	coordinatorURL string
	store          *storage.Store
	http           *http.Client
	logger         log.Logger
}

// NewSSEConsumer targets coordinatorURL (e.g. "http://localhost:9000").
func NewSSEConsumer(coordinatorURL string, store *storage.Store, logger log.Logger) *SSEConsumer {
	return &SSEConsumer{
		coordinatorURL: coordinatorURL,
		store:          store,
		http:           &http.Client{Timeout: 0}, // streaming response, no overall deadline
		logger:         logger,
	}
}

// Run connects and reconnects indefinitely until ctx is canceled.
func (c *SSEConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.connectAndConsume(ctx); err != nil {
			level.Warn(c.logger).Log("msg", "sse connection lost", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sseReconnectDelay):
		}
	}
}

func (c *SSEConsumer) connectAndConsume(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.coordinatorURL+"/api/events", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	healthCtx, cancelHealth := context.WithCancel(ctx)
	defer cancelHealth()
	go c.probeHealth(healthCtx)

	scanner := bufio.NewScanner(resp.Body)
	var eventName string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			eventName = ""
		case strings.HasPrefix(line, ":"):
			// heartbeat comment line, nothing to do
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			c.handleEvent(eventName, []byte(data))
		}
	}
	return scanner.Err()
}

// probeHealth polls the coordinator's /api/health every 5s purely to
// detect a dead connection sooner than a stalled read would; it does not
// gate event handling.
func (c *SSEConsumer) probeHealth(ctx context.Context) {
	ticker := time.NewTicker(sseHealthProbe)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := c.http.Get(c.coordinatorURL + "/api/health")
			if err != nil {
				level.Debug(c.logger).Log("msg", "coordinator health probe failed", "err", err)
				continue
			}
			resp.Body.Close()
		}
	}
}

func (c *SSEConsumer) handleEvent(name string, data []byte) {
	switch name {
	case "list-created", "list-deleted":
		c.handleListEvent(name, data)
	case "item-removed":
		c.handleItemRemoved(data)
	default:
		c.handleItemEvent(name, data)
	}
}

func (c *SSEConsumer) handleListEvent(name string, data []byte) {
	if name == "list-deleted" {
		var payload struct{ ID string `json:"id"` }
		if err := json.Unmarshal(data, &payload); err != nil {
			level.Warn(c.logger).Log("msg", "decode list-deleted event", "err", err)
			return
		}
		if _, err := c.store.GetList(payload.ID); err != nil {
			return // never loaded locally; privacy boundary
		}
		if err := c.store.DeleteList(payload.ID); err != nil {
			level.Warn(c.logger).Log("msg", "apply list-deleted event", "err", err)
		}
		return
	}

	var incoming domain.List
	if err := json.Unmarshal(data, &incoming); err != nil {
		level.Warn(c.logger).Log("msg", "decode list-created event", "err", err)
		return
	}
	local, err := c.store.GetList(incoming.ID)
	if err != nil {
		return // a list this client never loaded is not its concern
	}
	merged, changed := domain.ApplyIncomingList(&local, incoming)
	if !changed {
		return
	}
	if err := c.store.SaveList(merged); err != nil {
		level.Warn(c.logger).Log("msg", "persist merged list", "err", err)
	}
}

func (c *SSEConsumer) handleItemRemoved(data []byte) {
	var payload struct{ ID string `json:"id"` }
	if err := json.Unmarshal(data, &payload); err != nil {
		level.Warn(c.logger).Log("msg", "decode item-removed event", "err", err)
		return
	}
	if _, err := c.store.GetItem(payload.ID); err != nil {
		return
	}
	if err := c.store.DeleteItem(payload.ID); err != nil {
		level.Warn(c.logger).Log("msg", "apply item-removed event", "err", err)
	}
}

func (c *SSEConsumer) handleItemEvent(name string, data []byte) {
	var incoming domain.Item
	if err := json.Unmarshal(data, &incoming); err != nil {
		level.Warn(c.logger).Log("msg", "decode item event", "event", name, "err", err)
		return
	}

	// Privacy boundary: ignore events for lists never loaded locally.
	if _, err := c.store.GetList(incoming.ListID); err != nil {
		return
	}

	local, err := c.store.GetItem(incoming.ID)
	var merged domain.Item
	if err != nil {
		merged = incoming
	} else {
		scope, ok := eventScope[name]
		if !ok {
			scope = domain.ScopeAll
		}
		merged, _ = domain.ApplyIncomingItem(&local, incoming, scope)
	}
	if err := c.store.SaveItem(merged); err != nil {
		level.Warn(c.logger).Log("msg", "persist merged item", "err", err)
	}
}
