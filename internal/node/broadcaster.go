package node

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// HTTPBroadcaster is the Broadcaster that a real node wires in: it POSTs
// the BROADCAST envelope's payload to the cluster coordinator's
// /internal/broadcast endpoint (spec §4.9 step 7, §4.10). The coordinator
// is not a ring member and is reached over plain HTTP rather than C7.
type HTTPBroadcaster struct {
	coordinatorURL string
	client         *http.Client
	logger         log.Logger
}

// NewHTTPBroadcaster targets coordinatorURL (e.g. "http://localhost:9000").
func NewHTTPBroadcaster(coordinatorURL string, logger log.Logger) *HTTPBroadcaster {
	return &HTTPBroadcaster{
		coordinatorURL: coordinatorURL,
		client:         &http.Client{Timeout: 1 * time.Second},
		logger:         logger,
	}
}

type broadcastPayload struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Broadcast is best-effort: a coordinator outage must never block or fail
// the write it is reporting, so errors are logged and swallowed.
func (b *HTTPBroadcaster) Broadcast(event string, data any) {
	body, err := json.Marshal(broadcastPayload{Event: event, Data: data})
	if err != nil {
		level.Warn(b.logger).Log("msg", "marshal broadcast payload", "event", event, "err", err)
		return
	}

	resp, err := b.client.Post(b.coordinatorURL+"/internal/broadcast", "application/json", bytes.NewReader(body))
	if err != nil {
		level.Warn(b.logger).Log("msg", "broadcast to coordinator failed", "event", event, "err", err)
		return
	}
	defer resp.Body.Close()
}
