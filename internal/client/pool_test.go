package client

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
)

func TestNextRoundRobinsAcrossHealthyNodes(t *testing.T) {
	pool := NewServerPool([]string{"a", "b", "c"}, log.NewNopLogger())

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		node, ok := pool.Next()
		if !ok {
			t.Fatal("expected a node")
		}
		seen[node]++
	}
	for _, n := range []string{"a", "b", "c"} {
		if seen[n] != 2 {
			t.Fatalf("expected each node picked twice, got %v", seen)
		}
	}
}

func TestNextExcludesFailedNodes(t *testing.T) {
	pool := NewServerPool([]string{"a", "b"}, log.NewNopLogger())
	pool.MarkFailed("a")

	for i := 0; i < 4; i++ {
		node, ok := pool.Next()
		if !ok || node != "b" {
			t.Fatalf("expected only b to be picked, got %s", node)
		}
	}
}

func TestNextFallsBackToFullListWhenAllFailed(t *testing.T) {
	pool := NewServerPool([]string{"a", "b"}, log.NewNopLogger())
	pool.MarkFailed("a")
	pool.MarkFailed("b")

	node, ok := pool.Next()
	if !ok {
		t.Fatal("expected a fallback node even when all are marked failed")
	}
	if node != "a" && node != "b" {
		t.Fatalf("unexpected node %s", node)
	}
}

func TestCheckHealthRehabilitatesNode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK"}`))
	}))
	defer srv.Close()

	pool := NewServerPool([]string{srv.URL}, log.NewNopLogger())
	pool.MarkFailed(srv.URL)

	if !pool.checkHealth(srv.URL) {
		t.Fatal("expected health check to succeed")
	}
}
