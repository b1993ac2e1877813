// Package merkle implements the Merkle-tree anti-entropy digest (adapted
// from plethora's merkle package) used by a node's background anti-entropy
// pass (spec §7 "Merkle-tree anti-entropy"). It compares two nodes'
// (listId|itemId) -> lastUpdated key spaces without transferring the full
// state, and narrows a mismatch down to exactly the keys that diverged.
package merkle

import (
	"crypto/md5"
	"encoding/binary"
	"sort"
)

// KeyHash is one key's digest: md5(key + its lastUpdated timestamp), the
// smallest summary of a CRDT entity that still changes whenever the entity
// does.
type KeyHash struct {
	Key  string   `json:"key"`
	Hash [16]byte `json:"hash"`
}

// DigestKey hashes key's current lastUpdated stamp into a KeyHash.
func DigestKey(key string, lastUpdated int64) KeyHash {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(lastUpdated))
	h := md5.New()
	h.Write([]byte(key))
	h.Write(buf[:])
	var sum [16]byte
	copy(sum[:], h.Sum(nil))
	return KeyHash{Key: key, Hash: sum}
}

// node is one node of the tree; Key is only set on leaves.
type node struct {
	Hash  [16]byte
	Left  *node
	Right *node
	Key   string
}

// Build constructs a Merkle tree over entries: sorted by key, padded to the
// next power of two with empty leaves, then merged bottom-up with
// parent.Hash = md5(left.Hash + right.Hash).
func Build(entries []KeyHash) *node {
	if len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	leaves := make([]*node, len(entries))
	for i, e := range entries {
		leaves[i] = &node{Hash: e.Hash, Key: e.Key}
	}
	for len(leaves)&(len(leaves)-1) != 0 {
		leaves = append(leaves, &node{})
	}

	layer := leaves
	for len(layer) > 1 {
		next := make([]*node, 0, len(layer)/2)
		for i := 0; i < len(layer); i += 2 {
			var combined [32]byte
			copy(combined[:16], layer[i].Hash[:])
			copy(combined[16:], layer[i+1].Hash[:])
			next = append(next, &node{Left: layer[i], Right: layer[i+1], Hash: md5.Sum(combined[:])})
		}
		layer = next
	}
	return layer[0]
}

// Diff walks two trees built from the same sorted key space (pad with a
// zero KeyHash for a key one side is missing, so both sides' trees have
// matching shape) and returns every key whose hash differs between them.
func Diff(a, b *node) []string {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		return collectKeys(b)
	}
	if b == nil {
		return collectKeys(a)
	}
	if a.Hash == b.Hash {
		return nil
	}
	if a.Left == nil && b.Left == nil {
		if a.Key != "" {
			return []string{a.Key}
		}
		if b.Key != "" {
			return []string{b.Key}
		}
		return nil
	}
	out := Diff(a.Left, b.Left)
	out = append(out, Diff(a.Right, b.Right)...)
	return out
}

func collectKeys(n *node) []string {
	if n == nil {
		return nil
	}
	if n.Left == nil && n.Right == nil {
		if n.Key != "" {
			return []string{n.Key}
		}
		return nil
	}
	return append(collectKeys(n.Left), collectKeys(n.Right)...)
}

// DivergentKeys builds trees from local and remote digests over their
// combined key space (so a key present on only one side shows up as
// divergent rather than being silently dropped) and returns the keys whose
// digest disagrees.
func DivergentKeys(local, remote []KeyHash) []string {
	remoteByKey := make(map[string][16]byte, len(remote))
	for _, r := range remote {
		remoteByKey[r.Key] = r.Hash
	}
	localByKey := make(map[string][16]byte, len(local))
	for _, l := range local {
		localByKey[l.Key] = l.Hash
	}

	keys := make(map[string]struct{}, len(local)+len(remote))
	for _, l := range local {
		keys[l.Key] = struct{}{}
	}
	for _, r := range remote {
		keys[r.Key] = struct{}{}
	}

	localEntries := make([]KeyHash, 0, len(keys))
	remoteEntries := make([]KeyHash, 0, len(keys))
	for k := range keys {
		localEntries = append(localEntries, KeyHash{Key: k, Hash: localByKey[k]})
		remoteEntries = append(remoteEntries, KeyHash{Key: k, Hash: remoteByKey[k]})
	}

	return Diff(Build(localEntries), Build(remoteEntries))
}
