package domain

import (
	"testing"

	"github.com/listring/listring/internal/crdt"
)

func TestApplyIncomingListBeforeIsNoop(t *testing.T) {
	local := NewList("l1", "Groceries", "nodeA", 100)
	stale := local
	stale.VectorClock = crdt.NewVectorClock() // empty clock is strictly before local's

	result, changed := ApplyIncomingList(&local, stale)
	if changed {
		t.Fatalf("expected no change applying a causally-before list")
	}
	if result.Name.Value != local.Name.Value {
		t.Fatalf("local list must be returned unmodified")
	}
}

func TestApplyIncomingListAfterAdoptsIncoming(t *testing.T) {
	local := NewList("l1", "Groceries", "nodeA", 100)

	incoming := local
	incoming.VectorClock = local.VectorClock.Copy()
	incoming.VectorClock.Increment("nodeA")
	incoming.Name.Set("Party Supplies", "nodeA", 200)
	incoming.LastUpdated = 200

	result, changed := ApplyIncomingList(&local, incoming)
	if !changed {
		t.Fatalf("expected change applying a causally-after list")
	}
	if result.Name.Value != "Party Supplies" {
		t.Fatalf("expected incoming name to be adopted, got %s", result.Name.Value)
	}
}

func TestApplyIncomingListConcurrentMergesNameAndClock(t *testing.T) {
	base := NewList("l1", "Groceries", "nodeA", 100)

	local := base
	local.VectorClock = base.VectorClock.Copy()
	local.VectorClock.Increment("nodeA")
	local.Name.Set("Groceries (A)", "nodeA", 150)

	incoming := base
	incoming.VectorClock = base.VectorClock.Copy()
	incoming.VectorClock.Increment("nodeB")
	incoming.Name.Set("Groceries (B)", "nodeB", 200)
	incoming.LastUpdated = 200

	if crdt.Compare(incoming.VectorClock, local.VectorClock) != crdt.Concurrent {
		t.Fatalf("test setup invariant broken: expected concurrent clocks")
	}

	result, changed := ApplyIncomingList(&local, incoming)
	if !changed {
		t.Fatalf("expected a concurrent merge to report a change")
	}
	if result.Name.Value != "Groceries (B)" {
		t.Fatalf("expected LWW to pick the later timestamp, got %s", result.Name.Value)
	}
	if result.VectorClock["nodeA"] != 2 || result.VectorClock["nodeB"] != 1 {
		t.Fatalf("expected merged clock to dominate both inputs, got %v", result.VectorClock)
	}
	if result.LastUpdated != 200 {
		t.Fatalf("expected LastUpdated to take the max, got %d", result.LastUpdated)
	}
}

func TestApplyIncomingItemConcurrentScopeAcquiredOnlyMergesAcquired(t *testing.T) {
	base := NewItem("i1", "l1", "Milk", "nodeA", 2, 0, 100)

	local := base
	local.VectorClock = base.VectorClock.Copy()
	local.VectorClock.Increment("nodeA")
	local.Name.Set("Oat Milk", "nodeA", 150)

	incoming := base
	incoming.VectorClock = base.VectorClock.Copy()
	incoming.VectorClock.Increment("nodeB")
	incoming.Acquired.Increment("nodeB", 1)
	incoming.Name.Set("Almond Milk", "nodeB", 50) // earlier timestamp, must not win

	result, changed := ApplyIncomingItem(&local, incoming, ScopeAcquired)
	if !changed {
		t.Fatalf("expected change")
	}
	if result.Acquired.Value() != 1 {
		t.Fatalf("expected acquired to merge in nodeB's increment, got %d", result.Acquired.Value())
	}
	if result.Name.Value != "Oat Milk" {
		t.Fatalf("ScopeAcquired must not touch name, got %s", result.Name.Value)
	}
}

func TestApplyIncomingItemConcurrentScopeQuantityTakesTheGreaterTarget(t *testing.T) {
	// Every quantity write on the wire carries an absolute target, not a
	// delta (spec §4.4's updateField). Two concurrent target-setting
	// writes are alternatives, not composable increments, so the
	// concurrent merge keeps the greater target rather than summing them
	// (the worked "concurrent quantity edits" example: X sets 5, Y sets
	// 4, every replica converges on 5).
	base := NewItem("i1", "l1", "Milk", "nodeA", 2, 0, 100)

	local := base
	local.VectorClock = base.VectorClock.Copy()
	local.VectorClock.Increment("nodeA")
	local.Quantity.Increment("nodeA", 1) // local's target: 3

	incoming := base
	incoming.VectorClock = base.VectorClock.Copy()
	incoming.VectorClock.Increment("nodeB")
	incoming.Quantity.Increment("nodeB", 3) // incoming's target: 5
	incoming.Acquired.Increment("nodeB", 1)

	result, _ := ApplyIncomingItem(&local, incoming, ScopeQuantity)
	if result.Quantity.Value() != 5 {
		t.Fatalf("expected merged quantity to be the greater of 3 and 5, got %d", result.Quantity.Value())
	}
	if result.Acquired.Value() != 1 {
		t.Fatalf("expected merged acquired 1, got %d", result.Acquired.Value())
	}
}
