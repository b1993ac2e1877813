package ring

import (
	"fmt"
	"testing"
)

func nodeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node-%d", i)
	}
	return ids
}

func TestNewRejectsZeroNodes(t *testing.T) {
	_, err := New(nil, 3, 2, 2)
	if err == nil {
		t.Fatal("expected error for zero nodes")
	}
}

func TestNewRejectsNGreaterThanNodeCount(t *testing.T) {
	_, err := New(nodeIDs(2), 3, 2, 2)
	if err == nil {
		t.Fatal("expected error when N exceeds node count")
	}
}

func TestPreferenceListReturnsNDistinctNodes(t *testing.T) {
	r, err := New(nodeIDs(5), 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	list := r.PreferenceList("shopping-list-42")
	if len(list) != 3 {
		t.Fatalf("expected 3 replicas, got %d", len(list))
	}
	seen := make(map[string]bool)
	for _, id := range list {
		if seen[id] {
			t.Fatalf("preference list has a duplicate: %v", list)
		}
		seen[id] = true
	}
}

func TestPreferenceListIsStableForTheSameKey(t *testing.T) {
	r, err := New(nodeIDs(5), 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	first := r.PreferenceList("same-key")
	second := r.PreferenceList("same-key")
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("preference list not stable across calls: %v vs %v", first, second)
		}
	}
}

func TestQuorumUnderprovisionedDetection(t *testing.T) {
	r, err := New(nodeIDs(3), 3, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !r.QuorumUnderprovisioned() {
		t.Fatalf("expected R+W<=N to be flagged as underprovisioned")
	}

	r2, err := New(nodeIDs(3), 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if r2.QuorumUnderprovisioned() {
		t.Fatalf("expected R+W>N not to be flagged")
	}
}

// TestAddingOneNodeReassignsAtMostHalfOfKeys is the consistent-hashing
// property test from spec §8: adding one node out of N=3 must not move
// more than ~50% of a large key population to a different preference-list
// owner set.
func TestAddingOneNodeReassignsAtMostHalfOfKeys(t *testing.T) {
	before, err := New(nodeIDs(3), 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	after, err := New(nodeIDs(4), 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	const sampleSize = 10000
	moved := 0
	for i := 0; i < sampleSize; i++ {
		key := fmt.Sprintf("key-%d", i)
		a := before.PreferenceList(key)
		b := after.PreferenceList(key)
		if a[0] != b[0] {
			moved++
		}
	}

	ratio := float64(moved) / float64(sampleSize)
	if ratio > 0.5 {
		t.Fatalf("expected at most 50%% of keys to move primary owner, got %.2f%%", ratio*100)
	}
}

func TestSplitLocalAndRemote(t *testing.T) {
	local, remote := Split([]string{"a", "b", "c"}, "b")
	if local != "b" {
		t.Fatalf("expected local to be b, got %s", local)
	}
	if len(remote) != 2 || remote[0] != "a" || remote[1] != "c" {
		t.Fatalf("unexpected remote list: %v", remote)
	}
}

func TestSplitNoLocalMatch(t *testing.T) {
	local, remote := Split([]string{"a", "b", "c"}, "z")
	if local != "" {
		t.Fatalf("expected empty local, got %s", local)
	}
	if len(remote) != 3 {
		t.Fatalf("expected all three to be remote, got %v", remote)
	}
}
