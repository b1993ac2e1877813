// Package node implements the storage node (C9, spec §4.9): the REST API's
// business logic, the vector-clock-aware write state machine shared by
// client-originated HTTP requests and peer-originated replication
// messages, bootstrap-on-miss, hinted handoff, and the gossip handler.
package node

import (
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/crdt"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/quorum"
	"github.com/listring/listring/internal/storage"
	"github.com/listring/listring/internal/transport"
)

// nowMillis is a var so tests can stub the clock.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status    string `json:"status"`
	NodeID    string `json:"nodeId"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster pushes a successful state change to the cluster coordinator
// for SSE fan-out (spec §4.9 step 7) and tolerates the coordinator being
// unreachable (SSE fan-out is best-effort, never on the write's critical
// path). The implementation a node wires in, HTTPBroadcaster, POSTs to the
// coordinator over plain HTTP; no BROADCAST message is sent over C7.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Service is the storage node's public operation set; internal/httpapi
// calls these directly and internal/transport's Listener routes peer
// messages to HandlePeerMessage.
type Service interface {
	CreateList(id, name string, vc crdt.VectorClock, createdAt, lastUpdated int64) (domain.List, error)
	GetList(id string) (domain.ListSnapshot, error)
	DeleteList(id string) error
	ListLists() ([]domain.List, error)

	AddItem(listID, id, name string, quantity, acquired int64, vc crdt.VectorClock, createdAt, lastUpdated int64) (domain.Item, error)
	UpdateName(itemID, name string, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error)
	UpdateQuantity(itemID string, quantity int64, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error)
	ToggleItem(itemID string, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error)
	RemoveItem(itemID string) error
	ListItems() ([]domain.Item, error)

	Health() HealthStatus
	HandlePeerMessage(msg transport.Message) transport.Message
}

// service is the concrete Service; node.NewService wires it with its
// collaborators. Quorum and Broadcaster may be nil for a single-node
// deployment or in unit tests, in which case writes skip replication and
// broadcast is a no-op.
type service struct {
	nodeID string

	items *domain.ItemSet
	store *storage.Store

	quorum      *quorum.Coordinator
	broadcaster Broadcaster

	logger log.Logger
}

// NewService returns the base (undecorated) Service implementation.
func NewService(nodeID string, items *domain.ItemSet, store *storage.Store, q *quorum.Coordinator, broadcaster Broadcaster, logger log.Logger) Service {
	return &service{nodeID: nodeID, items: items, store: store, quorum: q, broadcaster: broadcaster, logger: logger}
}

func (s *service) Health() HealthStatus {
	return HealthStatus{Status: "OK", NodeID: s.nodeID, Timestamp: nowMillis()}
}

// stampClock implements this implementation's resolution of spec §4.9
// steps 1-2: a client-supplied, non-empty vector clock is taken as the
// authoritative stamp of its true origin and passed through unchanged,
// since the client already incremented its own component before sending
// it (spec §4.11's local operations). A missing/empty one means this node
// is the sole originator of the write, so it continues base's clock
// (empty, for a brand-new entity) and increments its own component.
func stampClock(supplied, base crdt.VectorClock, nodeID string) crdt.VectorClock {
	if len(supplied) > 0 {
		return supplied.Copy()
	}
	vc := base.Copy()
	if vc == nil {
		vc = crdt.NewVectorClock()
	}
	vc.Increment(nodeID)
	return vc
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return nowMillis()
}

// ===== Lists =====

func (s *service) CreateList(id, name string, vc crdt.VectorClock, createdAt, lastUpdated int64) (domain.List, error) {
	if name == "" {
		return domain.List{}, apierr.BadRequest("name is required", nil)
	}
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := s.store.GetList(id); err == nil {
		return domain.List{}, apierr.Conflict(fmt.Sprintf("list %s already exists", id), nil)
	}

	stamped := stampClock(vc, crdt.NewVectorClock(), s.nodeID)
	ts := firstNonZero(lastUpdated, createdAt)
	list := domain.List{
		ID:          id,
		Name:        crdt.NewRegister(name, s.nodeID, ts),
		CreatedAt:   firstNonZero(createdAt, ts),
		LastUpdated: ts,
		VectorClock: stamped,
	}

	if err := s.store.SaveList(list); err != nil {
		return domain.List{}, apierr.Internal("persist list", err)
	}
	s.replicateList(id, list, transport.MsgCreateList)
	s.broadcast("list-created", list)
	return list, nil
}

func (s *service) GetList(id string) (domain.ListSnapshot, error) {
	list, err := s.quorumReadList(id)
	if err != nil {
		return domain.ListSnapshot{}, err
	}

	items, err := s.store.ItemsByList(id)
	if err != nil {
		return domain.ListSnapshot{}, apierr.Internal("load items", err)
	}
	return domain.ListSnapshot{List: list, Items: items}, nil
}

func (s *service) DeleteList(id string) error {
	if _, err := s.store.GetList(id); err != nil {
		return apierr.NotFound(fmt.Sprintf("list %s not found", id), err)
	}

	if err := s.store.DeleteList(id); err != nil {
		return apierr.Internal("delete list", err)
	}
	s.items.RemoveAllForList(id)

	s.replicateListDelete(id)
	s.broadcast("list-deleted", map[string]string{"id": id})
	return nil
}

func (s *service) ListLists() ([]domain.List, error) {
	lists, err := s.store.AllLists()
	if err != nil {
		return nil, apierr.Internal("list lists", err)
	}
	return lists, nil
}

// ===== Items =====

func (s *service) AddItem(listID, id, name string, quantity, acquired int64, vc crdt.VectorClock, createdAt, lastUpdated int64) (domain.Item, error) {
	if name == "" {
		return domain.Item{}, apierr.BadRequest("name is required", nil)
	}
	if _, err := s.quorumReadList(listID); err != nil {
		return domain.Item{}, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	if _, ok := s.items.Get(id); ok {
		return domain.Item{}, apierr.Conflict(fmt.Sprintf("item %s already exists", id), nil)
	}

	stamped := stampClock(vc, crdt.NewVectorClock(), s.nodeID)
	ts := firstNonZero(lastUpdated, createdAt)
	qty := crdt.NewPNCounter()
	qty.SetTo(s.nodeID, quantity)
	acq := crdt.NewPNCounter()
	acq.SetTo(s.nodeID, acquired)

	supplied := domain.Item{
		ID:          id,
		ListID:      listID,
		Name:        crdt.NewRegister(name, s.nodeID, ts),
		Quantity:    qty,
		Acquired:    acq,
		CreatedAt:   firstNonZero(createdAt, ts),
		LastUpdated: ts,
		VectorClock: stamped,
	}

	return s.commitItemWrite(nil, supplied, domain.ScopeAll, transport.MsgAddItem, "item-added")
}

func (s *service) UpdateName(itemID, name string, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error) {
	base, err := s.resolveBaseItem(itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if name == "" {
		return domain.Item{}, apierr.BadRequest("name is required", nil)
	}

	supplied := base
	ts := firstNonZero(lastUpdated)
	supplied.VectorClock = stampClock(vc, base.VectorClock, s.nodeID)
	supplied.LastUpdated = ts
	supplied.Name.Set(name, s.nodeID, ts)

	return s.commitItemWrite(&base, supplied, domain.ScopeName, transport.MsgUpdateName, "item-name-updated")
}

func (s *service) UpdateQuantity(itemID string, quantity int64, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error) {
	base, err := s.resolveBaseItem(itemID)
	if err != nil {
		return domain.Item{}, err
	}

	supplied := base
	ts := firstNonZero(lastUpdated)
	supplied.VectorClock = stampClock(vc, base.VectorClock, s.nodeID)
	supplied.LastUpdated = ts
	supplied.Quantity = base.Quantity.Copy()
	supplied.Acquired = base.Acquired.Copy()
	supplied.Quantity.SetTo(s.nodeID, quantity)
	if acquired != nil {
		supplied.Acquired.SetTo(s.nodeID, *acquired)
	}

	return s.commitItemWrite(&base, supplied, domain.ScopeQuantity, transport.MsgUpdateQuantity, "item-quantity-updated")
}

func (s *service) ToggleItem(itemID string, acquired *int64, vc crdt.VectorClock, lastUpdated int64) (domain.Item, error) {
	base, err := s.resolveBaseItem(itemID)
	if err != nil {
		return domain.Item{}, err
	}

	target := int64(0)
	if acquired != nil {
		target = *acquired
	} else if base.Acquired.Value() == 0 {
		target = base.Quantity.Value()
	}

	supplied := base
	ts := firstNonZero(lastUpdated)
	supplied.VectorClock = stampClock(vc, base.VectorClock, s.nodeID)
	supplied.LastUpdated = ts
	supplied.Acquired = base.Acquired.Copy()
	supplied.Acquired.SetTo(s.nodeID, target)

	return s.commitItemWrite(&base, supplied, domain.ScopeAcquired, transport.MsgToggleCheck, "item-toggled")
}

func (s *service) RemoveItem(itemID string) error {
	if _, ok := s.items.Get(itemID); !ok {
		return apierr.NotFound(fmt.Sprintf("item %s not found", itemID), nil)
	}

	s.items.Remove(itemID)
	if err := s.store.DeleteItem(itemID); err != nil {
		return apierr.Internal("delete item", err)
	}

	s.replicateItemRemove(itemID)
	s.broadcast("item-removed", map[string]string{"id": itemID})
	return nil
}

func (s *service) ListItems() ([]domain.Item, error) {
	return s.items.All(), nil
}

// resolveBaseItem returns the item to build a PATCH's "supplied" value on
// top of: spec §4.9's quorum read path, so a PATCH's 3-way merge is never
// computed against a stale local copy that missed an earlier write.
func (s *service) resolveBaseItem(itemID string) (domain.Item, error) {
	return s.quorumReadItem(itemID)
}

// commitItemWrite runs spec §4.9 steps 3-7 for an Item write: base may be
// nil (a brand-new item, e.g. AddItem); supplied is the fully-formed
// incoming value already stamped by the caller. It 3-way-compares supplied
// against base, applies the winning result to the AWOR-Set and durable
// store, replicates to the rest of the preference list, and broadcasts.
func (s *service) commitItemWrite(base *domain.Item, supplied domain.Item, scope domain.FieldScope, msgType transport.MessageType, event string) (domain.Item, error) {
	merged, changed := domain.ApplyIncomingItem(base, supplied, scope)

	if base == nil {
		s.items.Add(merged)
	} else {
		s.items.Put(merged.ID, merged)
	}
	if err := s.store.SaveItem(merged); err != nil {
		return domain.Item{}, apierr.Internal("persist item", err)
	}

	if !changed {
		return merged, nil // before case: request was stale, reply carries current state (spec §8 boundary behavior)
	}

	s.replicateItem(merged, msgType)
	s.broadcast(event, merged)
	return merged, nil
}

func (s *service) broadcast(event string, data any) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(event, data)
}
