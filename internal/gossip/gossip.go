// Package gossip implements a lightweight heartbeat/failure-detector gossip
// protocol (adapted from plethora's gossip package) used only as a liveness
// optimization for C8 and the hinted-handoff drain loop (spec §7
// "Gossip-based liveness"). It never adds or removes a ring member; the
// ring's membership is fixed for a process's lifetime. A peer's liveness bit
// is advisory only — C7 timeouts and C8 quorum counting remain the source
// of truth for whether a write actually reached a replica.
package gossip

import (
	"math/rand"
	"sync"
	"time"
)

// MemberEntry is one node's membership state as seen by the local node, and
// the wire shape exchanged between peers during a gossip round.
type MemberEntry struct {
	NodeID    string `json:"nodeId"`
	Addr      string `json:"addr"`
	Heartbeat uint64 `json:"heartbeat"` // monotonic, only the owning node increments its own
	LastSeen  int64  `json:"lastSeen"`  // unix millis, local wall time when Heartbeat last advanced
}

// MemberList is a thread-safe gossip membership list. Every node on the
// ring maintains one and merges it with a random peer once per gossip tick.
type MemberList struct {
	mu      sync.RWMutex
	members map[string]*MemberEntry
	selfID  string
	tFail   time.Duration // a peer not heard from within tFail is suspected down
	now     func() int64
}

// NewMemberList seeds a membership list with the local node as its first
// entry. tFail is the suspicion window (spec §6 default 15s, 3x the gossip
// tick interval).
func NewMemberList(selfID, selfAddr string, tFail time.Duration) *MemberList {
	m := &MemberList{
		members: make(map[string]*MemberEntry),
		selfID:  selfID,
		tFail:   tFail,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
	m.members[selfID] = &MemberEntry{NodeID: selfID, Addr: selfAddr, LastSeen: m.now()}
	return m
}

// AddSeed registers a ring peer the local node already knows the address
// of, so gossip has somewhere to start even before the first round-trip.
func (m *MemberList) AddSeed(nodeID, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.members[nodeID]; !exists {
		m.members[nodeID] = &MemberEntry{NodeID: nodeID, Addr: addr, LastSeen: m.now()}
	}
}

// Tick advances the local node's own heartbeat. Called once per gossip
// round before the round's RandomPeer exchange.
func (m *MemberList) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	self := m.members[m.selfID]
	self.Heartbeat++
	self.LastSeen = m.now()
}

// Merge folds a remote peer's view of the cluster into the local one: a
// higher heartbeat for a known node wins and refreshes LastSeen; an unknown
// node is adopted outright. The local node's own entry is never overwritten
// by a remote claim about it.
func (m *MemberList) Merge(remote []MemberEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, r := range remote {
		if r.NodeID == m.selfID {
			continue
		}
		local, exists := m.members[r.NodeID]
		if !exists {
			m.members[r.NodeID] = &MemberEntry{NodeID: r.NodeID, Addr: r.Addr, Heartbeat: r.Heartbeat, LastSeen: now}
			continue
		}
		if r.Heartbeat > local.Heartbeat {
			local.Heartbeat = r.Heartbeat
			local.Addr = r.Addr
			local.LastSeen = now
		}
	}
}

// Entries snapshots every known member, self included, for sending to a
// gossip partner.
func (m *MemberList) Entries() []MemberEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemberEntry, 0, len(m.members))
	for _, e := range m.members {
		out = append(out, *e)
	}
	return out
}

// IsAlive reports whether nodeID has been heard from within the suspicion
// window.
func (m *MemberList) IsAlive(nodeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.members[nodeID]
	if !ok {
		return false
	}
	return m.now()-e.LastSeen < m.tFail.Milliseconds()
}

// RandomPeer picks a random member, excluding self, to gossip with this
// round. Suspected-down peers are included too, so a recovery is detected
// as soon as one gossip round reaches them.
func (m *MemberList) RandomPeer() (MemberEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := make([]*MemberEntry, 0, len(m.members)-1)
	for _, e := range m.members {
		if e.NodeID == m.selfID {
			continue
		}
		peers = append(peers, e)
	}
	if len(peers) == 0 {
		return MemberEntry{}, false
	}
	return *peers[rand.Intn(len(peers))], true
}

// Addr returns nodeID's last-known address, for resolving a gossip target
// to a dialable address.
func (m *MemberList) Addr(nodeID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.members[nodeID]
	if !ok {
		return "", false
	}
	return e.Addr, true
}
