package crdt

import "testing"

func TestRegisterMergeAdoptsLaterTimestamp(t *testing.T) {
	a := NewRegister("Milk", "X", 100)
	b := NewRegister("Soy Milk", "Y", 200)

	merged := a.Merge(b)
	if merged.Value != "Soy Milk" {
		t.Fatalf("expected Soy Milk, got %s", merged.Value)
	}

	merged2 := b.Merge(a)
	if merged2.Value != "Soy Milk" {
		t.Fatalf("merge not commutative: got %s", merged2.Value)
	}
}

func TestRegisterMergeTieBreaksOnWriterID(t *testing.T) {
	a := NewRegister("A-wins", "b", 100)
	b := NewRegister("B-wins", "a", 100)

	merged := a.Merge(b)
	if merged.Value != "A-wins" {
		t.Fatalf("expected the lexicographically greater writer id to win the tie, got %s", merged.Value)
	}
}

func TestRegisterMergeIdempotent(t *testing.T) {
	a := NewRegister("x", "n1", 5)
	if got := a.Merge(a); got != a {
		t.Fatalf("merge not idempotent: %v", got)
	}
}

func TestRegisterMergeAssociative(t *testing.T) {
	a := NewRegister("a", "n1", 1)
	b := NewRegister("b", "n2", 2)
	c := NewRegister("c", "n3", 3)

	left := a.Merge(b).Merge(c)
	right := a.Merge(b.Merge(c))
	if left != right {
		t.Fatalf("merge not associative: %v vs %v", left, right)
	}
}
