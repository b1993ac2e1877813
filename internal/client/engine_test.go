package client

import (
	"testing"

	"github.com/go-kit/log"

	"github.com/listring/listring/internal/storage"
)

type noopSyncer struct{ calls int }

func (n *noopSyncer) ScheduleSync() { n.calls++ }

func newTestEngine(t *testing.T) (*engine, *noopSyncer, *storage.Store) {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/client.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	syncer := &noopSyncer{}
	return &engine{nodeID: "client-1", store: store, syncer: syncer, logger: log.NewNopLogger()}, syncer, store
}

func TestCreateListPersistsAndEnqueuesPendingOp(t *testing.T) {
	e, syncer, store := newTestEngine(t)

	list, err := e.CreateList("Weekly")
	if err != nil {
		t.Fatal(err)
	}
	if list.VectorClock["client-1"] != 1 {
		t.Fatalf("expected vc={client-1:1}, got %v", list.VectorClock)
	}

	stored, err := store.GetList(list.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name.Value != "Weekly" {
		t.Fatalf("expected persisted list, got %+v", stored)
	}

	n, err := store.PendingCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pending op, got %d", n)
	}
	if syncer.calls != 1 {
		t.Fatalf("expected ScheduleSync called once, got %d", syncer.calls)
	}
}

func TestAddItemRequiresKnownList(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if _, err := e.AddItem("missing-list", "Milk", 1); err == nil {
		t.Fatal("expected error adding item to unknown list")
	}
}

func TestUpdateQuantityAdvancesLocalVectorClock(t *testing.T) {
	e, _, _ := newTestEngine(t)
	list, err := e.CreateList("Weekly")
	if err != nil {
		t.Fatal(err)
	}
	item, err := e.AddItem(list.ID, "Milk", 1)
	if err != nil {
		t.Fatal(err)
	}
	if item.VectorClock["client-1"] != 1 {
		t.Fatalf("expected item vc={client-1:1}, got %v", item.VectorClock)
	}

	updated, err := e.UpdateQuantity(item.ID, 5)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Quantity.Value() != 5 {
		t.Fatalf("expected quantity 5, got %d", updated.Quantity.Value())
	}
	if updated.VectorClock["client-1"] != 2 {
		t.Fatalf("expected vc to advance to 2, got %v", updated.VectorClock)
	}
}

func TestToggleItemFlipsBetweenZeroAndQuantity(t *testing.T) {
	e, _, _ := newTestEngine(t)
	list, _ := e.CreateList("Weekly")
	item, err := e.AddItem(list.ID, "Milk", 3)
	if err != nil {
		t.Fatal(err)
	}

	toggled, err := e.ToggleItem(item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if toggled.Acquired.Value() != 3 {
		t.Fatalf("expected acquired to jump to 3, got %d", toggled.Acquired.Value())
	}

	toggledAgain, err := e.ToggleItem(item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if toggledAgain.Acquired.Value() != 0 {
		t.Fatalf("expected acquired back to 0, got %d", toggledAgain.Acquired.Value())
	}
}

func TestRemoveItemRequiresExistingItem(t *testing.T) {
	e, _, _ := newTestEngine(t)
	if err := e.RemoveItem("missing"); err == nil {
		t.Fatal("expected not-found removing unknown item")
	}
}
