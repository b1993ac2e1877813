package domain

import "github.com/listring/listring/internal/crdt"

// FieldScope restricts which fields of an Item a given merge touches. The
// SSE event stream (spec §4.11) only ever carries a partial mutation — a
// toggle event only asserts `acquired`, a quantity event asserts both
// counters, a name event asserts only `name` — so the generic vector-clock
// state machine below needs to know which of the concurrent/after-case
// field merges actually apply.
type FieldScope int

const (
	ScopeAll FieldScope = iota
	ScopeName
	ScopeQuantity
	ScopeAcquired
)

// MergeListName resolves a List's name across a local and incoming register
// at whichever of the two registers carries the larger timestamp (LWW).
func MergeListName(local, incoming List) crdt.Register {
	return local.Name.Merge(incoming.Name)
}

// ApplyIncomingList runs the vector-clock-aware write state machine from
// spec §4.9 step 3 for a List: before -> unchanged; after -> adopt incoming;
// equal -> adopt incoming (values overwrite); concurrent -> LWW-merge name,
// merge clocks component-wise. It returns the resulting List and whether
// anything changed.
func ApplyIncomingList(local *List, incoming List) (result List, changed bool) {
	if local == nil {
		return incoming, true
	}

	switch crdt.Compare(incoming.VectorClock, local.VectorClock) {
	case crdt.Before:
		return *local, false
	case crdt.After, crdt.Equal:
		return incoming, true
	default: // Concurrent
		merged := *local
		merged.Name = MergeListName(*local, incoming)
		merged.VectorClock = local.VectorClock.Merge(incoming.VectorClock)
		if incoming.LastUpdated > merged.LastUpdated {
			merged.LastUpdated = incoming.LastUpdated
		}
		return merged, true
	}
}

// ApplyIncomingItem runs the same state machine for an Item, restricted to
// scope for the concurrent case. ScopeAll merges every field (the path used
// by node-to-node replication and by bootstrap-on-miss); ScopeName/
// ScopeQuantity/ScopeAcquired are used by the client's SSE consumer (spec
// §4.11) to merge only the field(s) the originating event actually asserts.
func ApplyIncomingItem(local *Item, incoming Item, scope FieldScope) (result Item, changed bool) {
	if local == nil {
		return incoming, true
	}

	switch crdt.Compare(incoming.VectorClock, local.VectorClock) {
	case crdt.Before:
		return *local, false
	case crdt.After, crdt.Equal:
		return incoming, true
	default: // Concurrent
		merged := *local
		merged.VectorClock = local.VectorClock.Merge(incoming.VectorClock)
		if incoming.LastUpdated > merged.LastUpdated {
			merged.LastUpdated = incoming.LastUpdated
		}

		switch scope {
		case ScopeName:
			merged.Name = local.Name.Merge(incoming.Name)
		case ScopeQuantity:
			merged.Quantity = local.Quantity.MergeMax(incoming.Quantity)
			merged.Acquired = local.Acquired.MergeMax(incoming.Acquired)
		case ScopeAcquired:
			merged.Acquired = local.Acquired.MergeMax(incoming.Acquired)
		default: // ScopeAll
			merged.Name = local.Name.Merge(incoming.Name)
			merged.Quantity = local.Quantity.MergeMax(incoming.Quantity)
			merged.Acquired = local.Acquired.MergeMax(incoming.Acquired)
		}

		return merged, true
	}
}
