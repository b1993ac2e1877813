package domain

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ItemSet is the add-wins observed-remove set of Items described in spec
// §4.4 (C4). Existence of an id is tracked by two tag sets; the CRDT value
// of a visible id is merged field-by-field (name by LWW, counters by
// PNCounter.MergeMax, the greater value winning) whenever two replicas' views of that id are reconciled.
//
// A remove observes the id's currently-known add-tags and folds them into
// the remove-tag set (rather than minting an unrelated tag) — this is what
// makes add-wins hold: a concurrent add on another replica mints a tag the
// remover never observed, so it survives reciprocal merge. Tags are
// UUID-suffixed (nodeId:counter:uuid) per the hardening note in spec §9.
type ItemSet struct {
	mu      sync.RWMutex
	nodeID  string
	counter uint64

	elements        map[string]Item
	addTags         map[string]map[string]struct{}
	removeTags      map[string]map[string]struct{}
	pendingRemovals map[string]struct{}
}

// NewItemSet returns an empty set whose locally-minted tags are stamped
// with nodeID.
func NewItemSet(nodeID string) *ItemSet {
	return &ItemSet{
		nodeID:          nodeID,
		elements:        make(map[string]Item),
		addTags:         make(map[string]map[string]struct{}),
		removeTags:      make(map[string]map[string]struct{}),
		pendingRemovals: make(map[string]struct{}),
	}
}

func (s *ItemSet) newTag() string {
	s.counter++
	return fmt.Sprintf("%s:%d:%s", s.nodeID, s.counter, uuid.NewString())
}

// Add makes item visible: it clears any pending-removal suppression and
// remove-tags for item.ID, mints a fresh add-tag, and stores item. A re-add
// after a remove is a legitimate re-birth (spec §4.4).
func (s *ItemSet) Add(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pendingRemovals, item.ID)
	delete(s.removeTags, item.ID)

	if s.addTags[item.ID] == nil {
		s.addTags[item.ID] = make(map[string]struct{})
	}
	s.addTags[item.ID][s.newTag()] = struct{}{}
	s.elements[item.ID] = item
}

// Remove observes every add-tag currently known for id and marks them
// removed, then suppresses id from reads until the next merge.
func (s *ItemSet) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *ItemSet) removeLocked(id string) {
	if s.removeTags[id] == nil {
		s.removeTags[id] = make(map[string]struct{})
	}
	for tag := range s.addTags[id] {
		s.removeTags[id][tag] = struct{}{}
	}
	s.pendingRemovals[id] = struct{}{}
}

// shouldExistLocked implements spec §4.4's add-wins rule: true iff there is
// at least one add-tag not also present in the remove-tag set.
func (s *ItemSet) shouldExistLocked(id string) bool {
	adds := s.addTags[id]
	if len(adds) == 0 {
		return false
	}
	removes := s.removeTags[id]
	for tag := range adds {
		if _, removed := removes[tag]; !removed {
			return true
		}
	}
	return false
}

// ShouldExist reports spec §4.4's add-wins predicate for id.
func (s *ItemSet) ShouldExist(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shouldExistLocked(id)
}

// visibleLocked reports whether id should be surfaced to readers: it must
// both pass the add-wins predicate and not be locally pending removal.
func (s *ItemSet) visibleLocked(id string) bool {
	if _, pending := s.pendingRemovals[id]; pending {
		return false
	}
	return s.shouldExistLocked(id)
}

// Get returns the current Item for id if it is visible.
func (s *ItemSet) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.visibleLocked(id) {
		return Item{}, false
	}
	item, ok := s.elements[id]
	return item, ok
}

// Put overwrites the stored body of an already-visible id without touching
// tag bookkeeping. It is used to apply a vector-clock-reconciled Item body
// (spec §4.9 step 3's after/equal/concurrent outcomes) coming from another
// replica, where existence was already established by a prior Add.
func (s *ItemSet) Put(id string, item Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.visibleLocked(id) {
		return false
	}
	s.elements[id] = item
	return true
}

// UpdateField applies a local-origin field mutation by running apply on
// the stored Item; field does not select the change, apply performs it in
// full. It then bumps LastUpdated and vectorClock[writerNodeID]. It is a
// no-op if id is pending removal or not stored.
func (s *ItemSet) UpdateField(id, field string, writerNodeID string, timestamp int64, apply func(*Item)) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, pending := s.pendingRemovals[id]; pending {
		return Item{}, false
	}
	item, ok := s.elements[id]
	if !ok {
		return Item{}, false
	}

	apply(&item)
	item.LastUpdated = timestamp
	item.VectorClock.Increment(writerNodeID)
	s.elements[id] = item

	return item, true
}

// ListItems returns all currently visible items belonging to listID.
func (s *ItemSet) ListItems(listID string) []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Item
	for id, item := range s.elements {
		if item.ListID == listID && s.visibleLocked(id) {
			out = append(out, item)
		}
	}
	return out
}

// All returns every currently visible item.
func (s *ItemSet) All() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Item, 0, len(s.elements))
	for id, item := range s.elements {
		if s.visibleLocked(id) {
			out = append(out, item)
		}
	}
	return out
}

// RemoveAllForList removes, in one pass, every item currently belonging to
// listID — the in-memory half of the atomic list-deletion invariant
// (spec §3 invariant 6); the durable half is the store's transactional
// DeleteList.
func (s *ItemSet) RemoveAllForList(listID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range s.elements {
		if item.ListID == listID {
			s.removeLocked(id)
		}
	}
}

// snapshotTags deep-copies the tag bookkeeping for Merge.
func snapshotTags(src map[string]map[string]struct{}) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(src))
	for id, tags := range src {
		cp := make(map[string]struct{}, len(tags))
		for t := range tags {
			cp[t] = struct{}{}
		}
		out[id] = cp
	}
	return out
}

// Merge folds other's state into s: pendingRemovals is cleared, addTags and
// removeTags are unioned per id, and every id whose ShouldExist becomes true
// gets its per-field CRDTs merged (max LastUpdated, merged vector clocks,
// LWW name, counters resolved by MergeMax); every id whose ShouldExist becomes false is
// deleted. Merge is commutative, associative and idempotent.
func (s *ItemSet) Merge(other *ItemSet) {
	other.mu.RLock()
	otherElements := make(map[string]Item, len(other.elements))
	for id, item := range other.elements {
		otherElements[id] = item
	}
	otherAdds := snapshotTags(other.addTags)
	otherRemoves := snapshotTags(other.removeTags)
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pendingRemovals = make(map[string]struct{})

	touched := make(map[string]struct{})
	for id := range s.addTags {
		touched[id] = struct{}{}
	}
	for id := range otherAdds {
		touched[id] = struct{}{}
	}
	for id := range s.removeTags {
		touched[id] = struct{}{}
	}
	for id := range otherRemoves {
		touched[id] = struct{}{}
	}

	for id, tags := range otherAdds {
		if s.addTags[id] == nil {
			s.addTags[id] = make(map[string]struct{})
		}
		for t := range tags {
			s.addTags[id][t] = struct{}{}
		}
	}
	for id, tags := range otherRemoves {
		if s.removeTags[id] == nil {
			s.removeTags[id] = make(map[string]struct{})
		}
		for t := range tags {
			s.removeTags[id][t] = struct{}{}
		}
	}

	for id := range touched {
		if !s.shouldExistLocked(id) {
			delete(s.elements, id)
			continue
		}

		localItem, hasLocal := s.elements[id]
		remoteItem, hasRemote := otherElements[id]

		switch {
		case hasLocal && hasRemote:
			s.elements[id] = mergeItemBody(localItem, remoteItem)
		case hasRemote && !hasLocal:
			s.elements[id] = remoteItem
		case hasLocal && !hasRemote:
			// keep localItem as-is
		}
	}
}

// mergeItemBody merges two known bodies of the same logical Item: the max
// of LastUpdated, the join of vector clocks, LWW-merged name, and
// counters resolved by PNCounter.MergeMax (the side with the greater
// value wins).
func mergeItemBody(a, b Item) Item {
	merged := a
	merged.VectorClock = a.VectorClock.Merge(b.VectorClock)
	merged.Name = a.Name.Merge(b.Name)
	merged.Quantity = a.Quantity.MergeMax(b.Quantity)
	merged.Acquired = a.Acquired.MergeMax(b.Acquired)
	if b.LastUpdated > merged.LastUpdated {
		merged.LastUpdated = b.LastUpdated
	}
	if b.CreatedAt < merged.CreatedAt {
		merged.CreatedAt = b.CreatedAt
	}
	return merged
}
