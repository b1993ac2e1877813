// Package client implements the client reconciliation engine (C11, spec
// §4.11): a local-first store that commits every mutation to a durable
// bbolt-backed queue before any network attempt, a push/pull sync loop
// against a pool of storage nodes, and an SSE consumer that folds
// coordinator-pushed events into local state using the same CRDT merge
// rules the storage node uses.
package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/google/uuid"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/storage"
)

var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Syncer is the subset of the sync engine the local-first write path needs:
// schedule a best-effort sync attempt without blocking the caller.
type Syncer interface {
	ScheduleSync()
}

// Engine is the client's public operation set: every method commits to the
// local store and returns before any network I/O happens.
type Engine interface {
	CreateList(name string) (domain.List, error)
	GetList(id string) (domain.ListSnapshot, error)
	DeleteList(id string) error
	ListLists() ([]domain.List, error)

	AddItem(listID, name string, quantity int64) (domain.Item, error)
	UpdateName(itemID, name string) (domain.Item, error)
	UpdateQuantity(itemID string, quantity int64) (domain.Item, error)
	ToggleItem(itemID string) (domain.Item, error)
	RemoveItem(itemID string) error
	ListItems() ([]domain.Item, error)

	PendingCount() (int, error)
}

type engine struct {
	nodeID string
	store  *storage.Store
	syncer Syncer
	logger log.Logger
}

// NewEngine returns the base (undecorated) Engine. syncer may be nil in
// tests that only exercise the local-first write path.
func NewEngine(nodeID string, store *storage.Store, syncer Syncer, logger log.Logger) Engine {
	return &engine{nodeID: nodeID, store: store, syncer: syncer, logger: logger}
}

func (e *engine) scheduleSync() {
	if e.syncer != nil {
		e.syncer.ScheduleSync()
	}
}

// enqueue persists op's payload as a PendingOp so a crash before the next
// successful sync still resends it (spec §8's pending-ops durability
// property).
func (e *engine) enqueue(opType domain.OpType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apierr.Internal("marshal pending op payload", err)
	}
	op := domain.PendingOp{
		ID:        uuid.NewString(),
		Type:      opType,
		Data:      data,
		Timestamp: nowMillis(),
	}
	if err := e.store.SavePendingOp(op); err != nil {
		return apierr.Internal("persist pending op", err)
	}
	return nil
}

// ===== Lists =====

func (e *engine) CreateList(name string) (domain.List, error) {
	if name == "" {
		return domain.List{}, apierr.BadRequest("name is required", nil)
	}

	ts := nowMillis()
	list := domain.NewList(uuid.NewString(), name, e.nodeID, ts)

	if err := e.store.SaveList(list); err != nil {
		return domain.List{}, apierr.Internal("persist list", err)
	}
	if err := e.enqueue(domain.OpCreateList, list); err != nil {
		return domain.List{}, err
	}
	e.scheduleSync()
	return list, nil
}

func (e *engine) GetList(id string) (domain.ListSnapshot, error) {
	list, err := e.store.GetList(id)
	if err != nil {
		return domain.ListSnapshot{}, apierr.NotFound(fmt.Sprintf("list %s not known locally", id), err)
	}
	items, err := e.store.ItemsByList(id)
	if err != nil {
		return domain.ListSnapshot{}, apierr.Internal("load items", err)
	}
	return domain.ListSnapshot{List: list, Items: items}, nil
}

func (e *engine) DeleteList(id string) error {
	if _, err := e.store.GetList(id); err != nil {
		return apierr.NotFound(fmt.Sprintf("list %s not known locally", id), err)
	}
	if err := e.store.DeleteList(id); err != nil {
		return apierr.Internal("delete list", err)
	}
	if err := e.enqueue(domain.OpDeleteList, map[string]string{"listId": id}); err != nil {
		return err
	}
	e.scheduleSync()
	return nil
}

func (e *engine) ListLists() ([]domain.List, error) {
	lists, err := e.store.AllLists()
	if err != nil {
		return nil, apierr.Internal("list lists", err)
	}
	return lists, nil
}

// ===== Items =====

func (e *engine) AddItem(listID, name string, quantity int64) (domain.Item, error) {
	if name == "" {
		return domain.Item{}, apierr.BadRequest("name is required", nil)
	}
	if _, err := e.store.GetList(listID); err != nil {
		return domain.Item{}, apierr.NotFound(fmt.Sprintf("list %s not known locally", listID), err)
	}

	ts := nowMillis()
	item := domain.NewItem(uuid.NewString(), listID, name, e.nodeID, quantity, 0, ts)

	if err := e.store.SaveItem(item); err != nil {
		return domain.Item{}, apierr.Internal("persist item", err)
	}
	if err := e.enqueue(domain.OpAddItem, item); err != nil {
		return domain.Item{}, err
	}
	e.scheduleSync()
	return item, nil
}

// mutateItem loads itemID, applies mutate under the local node's own
// vector-clock component (spec §4.11's local-operation contract: increment
// the local component, stamp lastUpdated=now), persists, and enqueues the
// op this change corresponds to.
func (e *engine) mutateItem(itemID string, opType domain.OpType, mutate func(*domain.Item, int64)) (domain.Item, error) {
	item, err := e.store.GetItem(itemID)
	if err != nil {
		return domain.Item{}, apierr.NotFound(fmt.Sprintf("item %s not known locally", itemID), err)
	}

	ts := nowMillis()
	mutate(&item, ts)
	item.LastUpdated = ts
	item.VectorClock.Increment(e.nodeID)

	if err := e.store.SaveItem(item); err != nil {
		return domain.Item{}, apierr.Internal("persist item", err)
	}
	if err := e.enqueue(opType, item); err != nil {
		return domain.Item{}, err
	}
	e.scheduleSync()
	return item, nil
}

func (e *engine) UpdateName(itemID, name string) (domain.Item, error) {
	if name == "" {
		return domain.Item{}, apierr.BadRequest("name is required", nil)
	}
	return e.mutateItem(itemID, domain.OpUpdateName, func(item *domain.Item, ts int64) {
		item.Name.Set(name, e.nodeID, ts)
	})
}

func (e *engine) UpdateQuantity(itemID string, quantity int64) (domain.Item, error) {
	return e.mutateItem(itemID, domain.OpUpdateQuantity, func(item *domain.Item, ts int64) {
		item.Quantity.SetTo(e.nodeID, quantity)
	})
}

func (e *engine) ToggleItem(itemID string) (domain.Item, error) {
	return e.mutateItem(itemID, domain.OpToggleCheck, func(item *domain.Item, ts int64) {
		target := item.Quantity.Value()
		if item.Acquired.Value() != 0 {
			target = 0
		}
		item.Acquired.SetTo(e.nodeID, target)
	})
}

func (e *engine) RemoveItem(itemID string) error {
	if _, err := e.store.GetItem(itemID); err != nil {
		return apierr.NotFound(fmt.Sprintf("item %s not known locally", itemID), err)
	}
	if err := e.store.DeleteItem(itemID); err != nil {
		return apierr.Internal("delete item", err)
	}
	if err := e.enqueue(domain.OpRemoveItem, map[string]string{"itemId": itemID}); err != nil {
		return err
	}
	e.scheduleSync()
	return nil
}

func (e *engine) ListItems() ([]domain.Item, error) {
	items, err := e.store.AllItems()
	if err != nil {
		return nil, apierr.Internal("list items", err)
	}
	return items, nil
}

func (e *engine) PendingCount() (int, error) {
	n, err := e.store.PendingCount()
	if err != nil {
		return 0, apierr.Internal("count pending ops", err)
	}
	return n, nil
}
