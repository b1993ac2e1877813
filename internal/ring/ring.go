// Package ring implements the consistent-hash ring (spec §4.6) that maps a
// key to its preference list of N replicas. The ring is static for the
// lifetime of a process — membership changes require a restart with a new
// configuration, not a runtime AddNode/RemoveNode call.
package ring

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"sort"
)

// point is one node's position on the ring: its SHA-1 digest, compared
// byte-for-byte (equivalent to comparing the digest as a 160-bit integer,
// since both are big-endian).
type point struct {
	nodeID string
	hash   [sha1.Size]byte
}

// Ring is the sorted sequence of node hashes plus the replication/quorum
// parameters every lookup is made against.
type Ring struct {
	points []point
	byID   map[string]struct{}

	N int // replication factor
	R int // minimum replicas for a successful read
	W int // minimum replicas for a successful write
}

// New builds a ring over nodeIDs with replication factor n and quorum
// thresholds r, w. It does not reject r+w<=n outright — per spec §4.8 that
// configuration only logs a warning at construction and still runs; the
// warning is the caller's responsibility (it has the logger).
func New(nodeIDs []string, n, r, w int) (*Ring, error) {
	if len(nodeIDs) == 0 {
		return nil, fmt.Errorf("ring: need at least one node")
	}
	if n > len(nodeIDs) {
		return nil, fmt.Errorf("ring: replication factor N=%d exceeds node count %d", n, len(nodeIDs))
	}

	points := make([]point, len(nodeIDs))
	byID := make(map[string]struct{}, len(nodeIDs))
	for i, id := range nodeIDs {
		points[i] = point{nodeID: id, hash: hashOf(id)}
		byID[id] = struct{}{}
	}
	sort.Slice(points, func(i, j int) bool {
		return bytes.Compare(points[i].hash[:], points[j].hash[:]) < 0
	})

	return &Ring{points: points, byID: byID, N: n, R: r, W: w}, nil
}

func hashOf(s string) [sha1.Size]byte {
	return sha1.Sum([]byte(s))
}

// QuorumUnderprovisioned reports whether R+W<=N, the condition spec §4.8
// says must be logged as a warning but otherwise tolerated.
func (r *Ring) QuorumUnderprovisioned() bool {
	return r.R+r.W <= r.N
}

// NodeCount returns the number of distinct nodes on the ring.
func (r *Ring) NodeCount() int {
	return len(r.points)
}

// PreferenceList returns the N distinct node ids whose hashes appear first
// at or after hash(key) on the ring, wrapping at the end (spec §4.6).
func (r *Ring) PreferenceList(key string) []string {
	if len(r.points) == 0 {
		return nil
	}

	keyHash := hashOf(key)
	start := sort.Search(len(r.points), func(i int) bool {
		return bytes.Compare(r.points[i].hash[:], keyHash[:]) >= 0
	})

	n := r.N
	if n > len(r.points) {
		n = len(r.points)
	}

	out := make([]string, 0, n)
	for i := 0; i < len(r.points) && len(out) < n; i++ {
		out = append(out, r.points[(start+i)%len(r.points)].nodeID)
	}
	return out
}

// HasNode reports whether nodeID is on the ring.
func (r *Ring) HasNode(nodeID string) bool {
	_, ok := r.byID[nodeID]
	return ok
}

// Split partitions preferenceList into the entry matching localNodeID (if
// any) and the rest, the local/remote split C8's write path needs.
func Split(preferenceList []string, localNodeID string) (local string, remote []string) {
	for _, id := range preferenceList {
		if id == localNodeID {
			local = id
			continue
		}
		remote = append(remote, id)
	}
	return local, remote
}
