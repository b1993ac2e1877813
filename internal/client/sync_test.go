package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/log"

	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/storage"
)

func newTestSyncEngine(t *testing.T, nodeURL string) (*SyncEngine, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/client.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	pool := NewServerPool([]string{nodeURL}, log.NewNopLogger())
	return NewSyncEngine("client-1", store, pool, log.NewNopLogger()), store
}

func TestSyncPushesLocalStateOnFirstSync(t *testing.T) {
	var sawCreateList, sawAddItem bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/lists":
			sawCreateList = true
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(domain.List{ID: "L1"})
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/api/lists/") && strings.HasSuffix(r.URL.Path, "/items"):
			sawAddItem = true
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(domain.Item{ID: "I1", ListID: "L1"})
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/lists/"):
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(domain.ListSnapshot{List: domain.List{ID: "L1"}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sync, store := newTestSyncEngine(t, srv.URL)
	eng := &engine{nodeID: "client-1", store: store, syncer: sync, logger: log.NewNopLogger()}

	list, err := eng.CreateList("Weekly")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddItem(list.ID, "Milk", 1); err != nil {
		t.Fatal(err)
	}

	if _, err := sync.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !sawCreateList || !sawAddItem {
		t.Fatalf("expected both create-list and add-item requests, got createList=%v addItem=%v", sawCreateList, sawAddItem)
	}

	n, err := store.PendingCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected pending ops cleared after sync, got %d", n)
	}

	watermark, err := store.LastSyncWatermark()
	if err != nil {
		t.Fatal(err)
	}
	if watermark == 0 {
		t.Fatal("expected sync watermark to advance past 0")
	}
}

func TestSyncTreatsConflictOnCreateAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "already exists"})
	}))
	defer srv.Close()

	sync, store := newTestSyncEngine(t, srv.URL)
	eng := &engine{nodeID: "client-1", store: store, syncer: sync, logger: log.NewNopLogger()}

	if _, err := eng.CreateList("Weekly"); err != nil {
		t.Fatal(err)
	}
	if _, err := sync.Sync(context.Background()); err != nil {
		t.Fatalf("expected conflict on create to be treated as success, got %v", err)
	}
}

func TestSyncTreatsNotFoundOnDeleteAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(domain.List{ID: "L1"})
		case http.MethodGet:
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(domain.ListSnapshot{List: domain.List{ID: "L1"}})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		}
	}))
	defer srv.Close()

	sync, store := newTestSyncEngine(t, srv.URL)
	eng := &engine{nodeID: "client-1", store: store, syncer: sync, logger: log.NewNopLogger()}

	list, err := eng.CreateList("Weekly")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sync.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := eng.DeleteList(list.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := sync.Sync(context.Background()); err != nil {
		t.Fatalf("expected 404-on-delete to be treated as success, got %v", err)
	}
}
