package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
)

const heartbeatInterval = 30 * time.Second

// broadcastRequest is the body a storage node POSTs to /internal/broadcast;
// it mirrors the BROADCAST inter-node envelope's payload half (spec §6).
type broadcastRequest struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewRouter builds the coordinator's HTTP surface: GET /api/events (SSE
// subscription) and POST /internal/broadcast (the storage node's fan-out
// push, §6's `{type:"BROADCAST", event, data}` carried over plain HTTP
// rather than C7, since the coordinator is not a ring member).
func NewRouter(hub *Hub, logger log.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(accessLogMiddleware(logger))

	r.Methods(http.MethodGet).Path("/api/events").HandlerFunc(sseHandler(hub, logger))
	r.Methods(http.MethodPost).Path("/internal/broadcast").HandlerFunc(broadcastHandler(hub))
	r.Methods(http.MethodGet).Path("/api/health").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "subscribers": hub.SubscriberCount()})
	})

	return r
}

func accessLogMiddleware(logger log.Logger) mux.MiddlewareFunc {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, w, r)
			level.Info(logger).Log("method", r.Method, "path", r.URL.Path, "status", m.Code, "duration", m.Duration)
		})
	}
}

func broadcastHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error"})
			return
		}
		hub.Publish(req.Event, req.Data)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// sseHandler serves GET /api/events: an indefinitely-held connection
// streaming named events plus a heartbeat comment line every 30s, torn down
// on client disconnect or server shutdown (request context cancellation).
func sseHandler(hub *Hub, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub, unsubscribe := hub.Subscribe()
		defer unsubscribe()

		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case evt, open := <-sub.ch:
				if !open {
					return
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.name, evt.data); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// Server owns the coordinator's HTTP listener and graceful-shutdown
// sequence, the same shape internal/httpapi's node server uses.
type Server struct {
	httpServer *http.Server
	logger     log.Logger
}

// NewServer binds router to addr.
func NewServer(addr string, router *mux.Router, logger log.Logger) *Server {
	return &Server{httpServer: &http.Server{Addr: addr, Handler: router}, logger: logger}
}

// Run serves until ctx is canceled, then drains in-flight connections
// (including open SSE streams, which exit promptly on context cancellation)
// before returning.
func (s *Server) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			level.Warn(s.logger).Log("msg", "graceful shutdown failed", "err", err)
		}
	}()

	level.Info(s.logger).Log("msg", "listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	wg.Wait()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
