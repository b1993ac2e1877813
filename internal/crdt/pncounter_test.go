package crdt

import "testing"

func TestPNCounterIncrementDecrement(t *testing.T) {
	c := NewPNCounter()
	c.Increment("n1", 5)
	c.Decrement("n1", 2)

	if got := c.Value(); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestPNCounterCanGoNegative(t *testing.T) {
	c := NewPNCounter()
	c.Decrement("n1", 4)

	if got := c.Value(); got != -4 {
		t.Fatalf("expected -4, got %d", got)
	}
}

func TestPNCounterMergeTakesPerNodeMax(t *testing.T) {
	a := NewPNCounter()
	a.Increment("n1", 5)
	a.Decrement("n1", 1)

	b := NewPNCounter()
	b.Increment("n1", 3)
	b.Increment("n2", 2)
	b.Decrement("n1", 4)

	merged := a.Merge(b)
	if merged.P["n1"] != 5 || merged.P["n2"] != 2 {
		t.Fatalf("unexpected P after merge: %v", merged.P)
	}
	if merged.N["n1"] != 4 {
		t.Fatalf("unexpected N after merge: %v", merged.N)
	}
}

func TestPNCounterMergeCommutativeAssociativeIdempotent(t *testing.T) {
	a := NewPNCounter()
	a.Increment("n1", 2)
	b := NewPNCounter()
	b.Increment("n1", 5)
	b.Decrement("n2", 1)
	c := NewPNCounter()
	c.Increment("n3", 7)

	ab := a.Merge(b)
	ba := b.Merge(a)
	if ab.Value() != ba.Value() {
		t.Fatalf("merge not commutative: %d vs %d", ab.Value(), ba.Value())
	}

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	if left.Value() != right.Value() {
		t.Fatalf("merge not associative: %d vs %d", left.Value(), right.Value())
	}

	if got := a.Merge(a); got.Value() != a.Value() {
		t.Fatalf("merge not idempotent: %d vs %d", got.Value(), a.Value())
	}
}

func TestPNCounterSetToComputesDelta(t *testing.T) {
	c := NewPNCounter()
	c.Increment("n1", 3)

	c.SetTo("n1", 5)
	if got := c.Value(); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}

	c.SetTo("n1", 1)
	if got := c.Value(); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
}
