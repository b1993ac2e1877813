// Package domain holds the shopping-list data model (spec §3) and the
// per-field CRDT merge policy (spec §4.4, §4.9 step 3) that every replica
// and every client applies identically so concurrent writes converge.
package domain

import "github.com/listring/listring/internal/crdt"

// List is a shared shopping list. Id and CreatedAt are immutable once set;
// Name is a last-writer-wins register so concurrent renames converge
// deterministically.
type List struct {
	ID          string          `json:"id"`
	Name        crdt.Register   `json:"name"`
	CreatedAt   int64           `json:"createdAt"`
	LastUpdated int64           `json:"lastUpdated"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
}

// Item belongs to exactly one List (ListID is immutable once set). Quantity
// and Acquired are PN-counters; concurrent writes to them are reconciled
// by PNCounter.MergeMax, which keeps the side with the greater value. Name
// is LWW like List.Name.
type Item struct {
	ID          string          `json:"id"`
	ListID      string          `json:"listId"`
	Name        crdt.Register   `json:"name"`
	Quantity    crdt.PNCounter  `json:"quantity"`
	Acquired    crdt.PNCounter  `json:"acquired"`
	CreatedAt   int64           `json:"createdAt"`
	LastUpdated int64           `json:"lastUpdated"`
	VectorClock crdt.VectorClock `json:"vectorClock"`
}

// OpType enumerates the pending-operation kinds a client can queue (spec §3).
type OpType string

const (
	OpCreateList      OpType = "CREATE_LIST"
	OpDeleteList      OpType = "DELETE_LIST"
	OpAddItem         OpType = "ADD_ITEM"
	OpUpdateName      OpType = "UPDATE_NAME"
	OpUpdateQuantity  OpType = "UPDATE_QUANTITY"
	OpToggleCheck     OpType = "TOGGLE_CHECK"
	OpRemoveItem      OpType = "REMOVE_ITEM"
)

// PendingOp is a client-only queued mutation awaiting sync (spec §3, §4.11).
type PendingOp struct {
	ID        string `json:"id"`
	Type      OpType `json:"type"`
	Data      []byte `json:"data"` // opaque JSON payload the server endpoint expects
	Timestamp int64  `json:"timestamp"`
	Synced    bool   `json:"synced"`
}

// Hint is a node-only queued redelivery for a replica that was unreachable
// at acknowledgment time (spec §3, §4.9 "Hinted handoff").
type Hint struct {
	TargetNodeID string    `json:"targetNodeId"`
	Operation    ReplicaOp `json:"operation"`
}

// ReplicaOp is the envelope exchanged between replicas and queued in hints;
// it mirrors the inter-node JSON envelopes of spec §6.
type ReplicaOp struct {
	Type   string `json:"type"`
	List   *List  `json:"list,omitempty"`
	Item   *Item  `json:"item,omitempty"`
	ItemID string `json:"itemId,omitempty"`
	ListID string `json:"listId,omitempty"`
}

// ListSnapshot is the wire shape returned by GET /api/lists/:id (spec §6):
// a List plus its Items, both flattened to plain values.
type ListSnapshot struct {
	List
	Items []Item `json:"items"`
}

// NewList creates a fresh List with id, name stamped at timestamp ms by
// writerNodeID, and vclock[writerNodeID] = 1.
func NewList(id, name, writerNodeID string, timestamp int64) List {
	vc := crdt.NewVectorClock()
	vc.Increment(writerNodeID)
	return List{
		ID:          id,
		Name:        crdt.NewRegister(name, writerNodeID, timestamp),
		CreatedAt:   timestamp,
		LastUpdated: timestamp,
		VectorClock: vc,
	}
}

// NewItem creates a fresh Item with id, listID, name stamped at timestamp ms
// by writerNodeID, quantity/acquired counters seeded to the given starting
// values on writerNodeID's tally, and vclock[writerNodeID] = 1.
func NewItem(id, listID, name, writerNodeID string, quantity, acquired int64, timestamp int64) Item {
	vc := crdt.NewVectorClock()
	vc.Increment(writerNodeID)

	qty := crdt.NewPNCounter()
	qty.SetTo(writerNodeID, quantity)

	acq := crdt.NewPNCounter()
	acq.SetTo(writerNodeID, acquired)

	return Item{
		ID:          id,
		ListID:      listID,
		Name:        crdt.NewRegister(name, writerNodeID, timestamp),
		Quantity:    qty,
		Acquired:    acq,
		CreatedAt:   timestamp,
		LastUpdated: timestamp,
		VectorClock: vc,
	}
}
