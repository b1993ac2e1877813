package domain

import "testing"

func TestItemSetAddMakesItemVisible(t *testing.T) {
	s := NewItemSet("nodeA")
	item := NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100)
	s.Add(item)

	got, ok := s.Get("i1")
	if !ok {
		t.Fatalf("expected item to be visible after Add")
	}
	if got.Name.Value != "Milk" {
		t.Fatalf("unexpected name %s", got.Name.Value)
	}
}

func TestItemSetRemoveHidesItem(t *testing.T) {
	s := NewItemSet("nodeA")
	s.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))
	s.Remove("i1")

	if _, ok := s.Get("i1"); ok {
		t.Fatalf("expected item to be hidden after Remove")
	}
	if s.ShouldExist("i1") {
		t.Fatalf("expected ShouldExist to be false after Remove")
	}
}

func TestItemSetReAddAfterRemoveIsRebirth(t *testing.T) {
	s := NewItemSet("nodeA")
	s.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))
	s.Remove("i1")
	s.Add(NewItem("i1", "l1", "Milk", "nodeA", 2, 0, 200))

	got, ok := s.Get("i1")
	if !ok {
		t.Fatalf("expected item to be visible again after re-add")
	}
	if got.Quantity.Value() != 2 {
		t.Fatalf("expected re-added item's body, got quantity %d", got.Quantity.Value())
	}
}

func TestItemSetUpdateFieldIsNoopWhenPendingRemoval(t *testing.T) {
	s := NewItemSet("nodeA")
	s.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))
	s.Remove("i1")

	_, ok := s.UpdateField("i1", "quantity", "nodeA", 300, func(it *Item) {
		it.Quantity.SetTo("nodeA", 5)
	})
	if ok {
		t.Fatalf("expected UpdateField to no-op on a pending-removal id")
	}
}

func TestItemSetUpdateFieldBumpsVectorClockAndTimestamp(t *testing.T) {
	s := NewItemSet("nodeA")
	s.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))

	got, ok := s.UpdateField("i1", "quantity", "nodeA", 300, func(it *Item) {
		it.Quantity.SetTo("nodeA", 5)
	})
	if !ok {
		t.Fatalf("expected UpdateField to apply")
	}
	if got.Quantity.Value() != 5 {
		t.Fatalf("expected quantity 5, got %d", got.Quantity.Value())
	}
	if got.LastUpdated != 300 {
		t.Fatalf("expected LastUpdated 300, got %d", got.LastUpdated)
	}
	if got.VectorClock["nodeA"] != 2 {
		t.Fatalf("expected vector clock to be bumped to 2, got %d", got.VectorClock["nodeA"])
	}
}

// TestItemSetConcurrentAddRemoveIsAddWins is the add-wins property test: two
// disjoint replicas race a concurrent add(x) and remove(x); after each
// observes the other's state via reciprocal Merge, both must see x present.
func TestItemSetConcurrentAddRemoveIsAddWins(t *testing.T) {
	replicaA := NewItemSet("nodeA")
	replicaB := NewItemSet("nodeB")

	shared := NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100)
	replicaA.Add(shared)
	replicaB.Add(shared)

	// B removes its view of i1 without having observed any add concurrent
	// with A's upcoming one.
	replicaB.Remove("i1")

	// A concurrently re-adds (mints a fresh add-tag B never observed).
	replicaA.Add(NewItem("i1", "l1", "Milk", "nodeA", 2, 0, 200))

	replicaA.Merge(replicaB)
	replicaB.Merge(replicaA)

	if !replicaA.ShouldExist("i1") {
		t.Fatalf("add-wins violated: i1 missing on replica A after merge")
	}
	if !replicaB.ShouldExist("i1") {
		t.Fatalf("add-wins violated: i1 missing on replica B after merge")
	}
}

func TestItemSetMergeIsCommutative(t *testing.T) {
	a := NewItemSet("nodeA")
	a.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))

	b := NewItemSet("nodeB")
	b.Add(NewItem("i2", "l1", "Bread", "nodeB", 1, 0, 100))

	left := NewItemSet("nodeA")
	left.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))
	left.Merge(b)

	right := NewItemSet("nodeB")
	right.Add(NewItem("i2", "l1", "Bread", "nodeB", 1, 0, 100))
	right.Merge(a)

	if len(left.All()) != len(right.All()) {
		t.Fatalf("merge not commutative: %d vs %d visible items", len(left.All()), len(right.All()))
	}
}

func TestItemSetMergeIsIdempotent(t *testing.T) {
	a := NewItemSet("nodeA")
	a.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))

	snapshot := NewItemSet("nodeB")
	snapshot.Merge(a)
	before := len(snapshot.All())

	snapshot.Merge(a)
	after := len(snapshot.All())

	if before != after {
		t.Fatalf("merge not idempotent: %d vs %d visible items", before, after)
	}
}

func TestItemSetRemoveAllForListHidesOnlyThatListsItems(t *testing.T) {
	s := NewItemSet("nodeA")
	s.Add(NewItem("i1", "l1", "Milk", "nodeA", 1, 0, 100))
	s.Add(NewItem("i2", "l2", "Nails", "nodeA", 1, 0, 100))

	s.RemoveAllForList("l1")

	if _, ok := s.Get("i1"); ok {
		t.Fatalf("expected i1 to be hidden after RemoveAllForList(l1)")
	}
	if _, ok := s.Get("i2"); !ok {
		t.Fatalf("expected i2 (different list) to remain visible")
	}
}
