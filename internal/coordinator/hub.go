// Package coordinator implements the cluster coordinator (C10, spec §4.10):
// a process-wide SSE fan-out with no durable state and no place on the
// read/write critical path. Storage nodes POST a broadcast envelope to
// /internal/broadcast; the hub multicasts it to every connected SSE
// subscriber and emits a heartbeat comment line every 30s.
package coordinator

import (
	"encoding/json"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// event is what crosses from Publish to a subscriber's channel: an SSE
// "event: <name>\ndata: <json>" frame's two halves.
type event struct {
	name string
	data []byte
}

// subscriber is one connected SSE client.
type subscriber struct {
	ch chan event
}

// Hub holds the live set of SSE subscribers and multicasts published
// events to all of them. It is safe for concurrent use.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
	logger      log.Logger
}

// NewHub returns an empty Hub.
func NewHub(logger log.Logger) *Hub {
	return &Hub{subscribers: make(map[*subscriber]struct{}), logger: logger}
}

// Subscribe registers a new subscriber and returns it along with an
// unsubscribe function the caller must defer.
func (h *Hub) Subscribe() (*subscriber, func()) {
	sub := &subscriber{ch: make(chan event, 32)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	return sub, func() {
		h.mu.Lock()
		delete(h.subscribers, sub)
		h.mu.Unlock()
		close(sub.ch)
	}
}

// Publish marshals data and multicasts it under name to every connected
// subscriber. A subscriber whose buffer is full is skipped rather than
// blocking the publisher — a slow SSE client must never stall a storage
// node's broadcast.
func (h *Hub) Publish(name string, data json.RawMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	evt := event{name: name, data: data}
	for sub := range h.subscribers {
		select {
		case sub.ch <- evt:
		default:
			level.Warn(h.logger).Log("msg", "dropping event for slow subscriber", "event", name)
		}
	}
}

// SubscriberCount reports the number of currently connected SSE clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
