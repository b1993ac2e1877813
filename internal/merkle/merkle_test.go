package merkle

import (
	"sort"
	"testing"
)

func TestDigestKeyIsStableAndSensitiveToTimestamp(t *testing.T) {
	a := DigestKey("list:1", 100)
	b := DigestKey("list:1", 100)
	c := DigestKey("list:1", 200)

	if a.Hash != b.Hash {
		t.Fatal("expected identical key+timestamp to digest identically")
	}
	if a.Hash == c.Hash {
		t.Fatal("expected different timestamps to digest differently")
	}
}

func TestBuildAndDiffFindNoDivergenceOverIdenticalSets(t *testing.T) {
	entries := []KeyHash{
		DigestKey("list:1", 100),
		DigestKey("list:2", 200),
		DigestKey("item:1", 300),
	}
	a := Build(append([]KeyHash{}, entries...))
	b := Build(append([]KeyHash{}, entries...))

	if diff := Diff(a, b); len(diff) != 0 {
		t.Fatalf("expected no divergence, got %v", diff)
	}
}

func TestDivergentKeysFindsChangedAndMissingKeys(t *testing.T) {
	local := []KeyHash{
		DigestKey("list:1", 100),
		DigestKey("list:2", 200),
		DigestKey("item:1", 300),
	}
	remote := []KeyHash{
		DigestKey("list:1", 999), // changed
		DigestKey("list:2", 200), // unchanged
		// item:1 missing on remote
		DigestKey("item:2", 400), // missing on local
	}

	divergent := DivergentKeys(local, remote)
	sort.Strings(divergent)

	want := []string{"item:1", "item:2", "list:1"}
	if len(divergent) != len(want) {
		t.Fatalf("expected %v, got %v", want, divergent)
	}
	for i, k := range want {
		if divergent[i] != k {
			t.Fatalf("expected %v, got %v", want, divergent)
		}
	}
}

func TestDivergentKeysOverEmptySetsIsEmpty(t *testing.T) {
	if divergent := DivergentKeys(nil, nil); len(divergent) != 0 {
		t.Fatalf("expected no divergence over two empty sets, got %v", divergent)
	}
}
