// Package httpapi implements the storage node's REST surface (spec §6): a
// gorilla/mux router over internal/node's Service, with an httpsnoop
// access-log middleware and the graceful-shutdown sequence this project's
// server processes share.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/listring/listring/internal/node"
)

// NewRouter builds the mux.Router serving every endpoint in spec §6's HTTP
// table (everything but GET /api/events, which the cluster coordinator
// serves, not a storage node).
func NewRouter(svc node.Service, logger log.Logger) *mux.Router {
	h := &handlers{svc: svc, logger: logger}

	r := mux.NewRouter()
	r.Use(accessLogMiddleware(logger))

	r.Methods(http.MethodGet).Path("/api/health").HandlerFunc(h.health)

	r.Methods(http.MethodPost).Path("/api/lists").HandlerFunc(h.createList)
	r.Methods(http.MethodGet).Path("/api/lists").HandlerFunc(h.listLists)
	r.Methods(http.MethodGet).Path("/api/lists/{id}").HandlerFunc(h.getList)
	r.Methods(http.MethodDelete).Path("/api/lists/{id}").HandlerFunc(h.deleteList)

	r.Methods(http.MethodPost).Path("/api/lists/{id}/items").HandlerFunc(h.addItem)
	r.Methods(http.MethodGet).Path("/api/items").HandlerFunc(h.listItems)
	r.Methods(http.MethodPatch).Path("/api/items/{id}/toggle").HandlerFunc(h.toggleItem)
	r.Methods(http.MethodPatch).Path("/api/items/{id}/quantity").HandlerFunc(h.updateQuantity)
	r.Methods(http.MethodPatch).Path("/api/items/{id}/name").HandlerFunc(h.updateName)
	r.Methods(http.MethodDelete).Path("/api/items/{id}").HandlerFunc(h.removeItem)

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

// Server owns the HTTP listener and its graceful-shutdown sequence.
type Server struct {
	httpServer *http.Server
	logger     log.Logger
}

// NewServer binds router to addr.
func NewServer(addr string, router *mux.Router, logger log.Logger) *Server {
	return &Server{httpServer: &http.Server{Addr: addr, Handler: router}, logger: logger}
}

// Run serves until ctx is canceled, then drains in-flight requests before
// returning. Mirrors the context+WaitGroup+signal shutdown sequence this
// project's node and coordinator processes both use.
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
