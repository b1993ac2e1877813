package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
)

func TestBroadcastHandlerPublishesToHub(t *testing.T) {
	hub := NewHub(log.NewNopLogger())
	router := NewRouter(hub, log.NewNopLogger())

	sub, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	body, _ := json.Marshal(broadcastRequest{Event: "list-created", Data: json.RawMessage(`{"id":"L1"}`)})
	req := httptest.NewRequest(http.MethodPost, "/internal/broadcast", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case evt := <-sub.ch:
		if evt.name != "list-created" {
			t.Fatalf("expected list-created, got %s", evt.name)
		}
	default:
		t.Fatal("expected broadcast to reach subscriber synchronously")
	}
}

func TestBroadcastHandlerRejectsMalformedBody(t *testing.T) {
	hub := NewHub(log.NewNopLogger())
	router := NewRouter(hub, log.NewNopLogger())

	req := httptest.NewRequest(http.MethodPost, "/internal/broadcast", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealthEndpointReportsSubscriberCount(t *testing.T) {
	hub := NewHub(log.NewNopLogger())
	router := NewRouter(hub, log.NewNopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "OK" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["subscribers"] != float64(0) {
		t.Fatalf("expected subscribers 0, got %v", body["subscribers"])
	}
}
