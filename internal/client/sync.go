package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/apierr"
	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/storage"
)

const (
	backoffBase    = 500 * time.Millisecond
	backoffFactor  = 2
	backoffMaxTry  = 5
)

// SyncResult reports one sync attempt's outcome, surfaced to the UI's sync
// status badge (spec §7 "User-visible failure").
type SyncResult struct {
	Pushed  int
	Pulled  int
	Merged  int
	Skipped int
}

// SyncEngine runs the push/pull sync loop against the server pool (C11,
// spec §4.11). Exactly one Sync runs at a time; ScheduleSync requests a
// best-effort attempt without blocking the local-first write path that
// triggered it.
type SyncEngine struct {
	nodeID string
	store  *storage.Store
	pool   *ServerPool
	logger log.Logger

	running  atomic.Bool
	requests chan struct{}
}

// NewSyncEngine returns a SyncEngine; call Run in a goroutine to start
// servicing ScheduleSync requests.
func NewSyncEngine(nodeID string, store *storage.Store, pool *ServerPool, logger log.Logger) *SyncEngine {
	return &SyncEngine{
		nodeID:   nodeID,
		store:    store,
		pool:     pool,
		logger:   logger,
		requests: make(chan struct{}, 1),
	}
}

// ScheduleSync enqueues a sync attempt. It never blocks: a pending request
// is coalesced with one already queued.
func (s *SyncEngine) ScheduleSync() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

// Run services ScheduleSync requests until ctx is canceled.
func (s *SyncEngine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.requests:
			s.runWithBackoff(ctx)
		}
	}
}

// runWithBackoff ensures a single sync is in flight at a time (spec
// §4.11's "single guard") and makes up to backoffMaxTry attempts, with
// exponential backoff between them, before giving up and
// waiting for the next ScheduleSync (or a later retry request coalesced
// into it).
func (s *SyncEngine) runWithBackoff(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	delay := backoffBase
	for attempt := 1; attempt <= backoffMaxTry; attempt++ {
		result, err := s.Sync(ctx)
		if err == nil {
			level.Info(s.logger).Log("msg", "sync complete", "pushed", result.Pushed, "pulled", result.Pulled, "merged", result.Merged)
			return
		}

		n, _ := s.store.PendingCount()
		level.Warn(s.logger).Log("msg", "sync attempt failed", "attempt", attempt, "pending", n, "err", err)
		if attempt == backoffMaxTry {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= backoffFactor
	}
}

// Sync runs one push/pull cycle: push every local List/Item on a first
// sync, push pending ops in timestamp order, pull every known list on a
// first sync only, then clear synced ops and save the sync watermark. A
// first sync is one made while the store holds no sync watermark yet, so
// once any sync has succeeded, later processes on the same store do not
// repeat the full push or the pull.
func (s *SyncEngine) Sync(ctx context.Context) (SyncResult, error) {
	node, ok := s.pool.Next()
	if !ok {
		return SyncResult{}, apierr.QuorumUnavailable("no storage nodes configured", nil)
	}
	nc := NewNodeClient(node)

	watermark, err := s.store.LastSyncWatermark()
	if err != nil {
		return SyncResult{}, apierr.Internal("read sync watermark", err)
	}
	firstSync := watermark == 0

	var result SyncResult

	if firstSync {
		if err := s.pushAllLocalState(ctx, nc, &result); err != nil {
			s.pool.MarkFailed(node)
			return result, err
		}
	}

	if err := s.pushPendingOps(ctx, nc, &result); err != nil {
		s.pool.MarkFailed(node)
		return result, err
	}

	if firstSync {
		if err := s.pullKnownLists(ctx, nc, &result); err != nil {
			s.pool.MarkFailed(node)
			return result, err
		}
	}

	if err := s.store.ClearSynced(); err != nil {
		return result, apierr.Internal("clear synced ops", err)
	}
	if err := s.store.SaveLastSyncWatermark(nowMillis()); err != nil {
		return result, apierr.Internal("save sync watermark", err)
	}
	return result, nil
}

// recoverable reports whether err represents an outcome the sync loop
// treats as success rather than a retryable failure: a 409 on create (the
// entity already exists cluster-side) or a 404 on a delete/remove (spec
// §7's idempotent-create/idempotent-delete recovery policy).
func recoverable(err error, idempotentNotFound bool) bool {
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Kind == apierr.KindConflict {
		return true
	}
	if idempotentNotFound && apiErr.Kind == apierr.KindNotFound {
		return true
	}
	return false
}

func (s *SyncEngine) pushAllLocalState(ctx context.Context, nc *NodeClient, result *SyncResult) error {
	lists, err := s.store.AllLists()
	if err != nil {
		return apierr.Internal("load local lists", err)
	}
	for _, list := range lists {
		if _, err := nc.CreateList(ctx, list); err != nil && !recoverable(err, false) {
			return fmt.Errorf("push list %s: %w", list.ID, err)
		}
		result.Pushed++

		items, err := s.store.ItemsByList(list.ID)
		if err != nil {
			return apierr.Internal("load local items", err)
		}
		for _, item := range items {
			if _, err := nc.AddItem(ctx, item); err != nil && !recoverable(err, false) {
				return fmt.Errorf("push item %s: %w", item.ID, err)
			}
			result.Pushed++
		}
	}
	return nil
}

func (s *SyncEngine) pushPendingOps(ctx context.Context, nc *NodeClient, result *SyncResult) error {
	ops, err := s.store.UnsyncedOps()
	if err != nil {
		return apierr.Internal("load pending ops", err)
	}

	for _, op := range ops {
		if err := s.pushOne(ctx, nc, op); err != nil {
			return err
		}
		if err := s.store.MarkSynced(op.ID); err != nil {
			return apierr.Internal("mark op synced", err)
		}
		result.Pushed++
	}
	return nil
}

func (s *SyncEngine) pushOne(ctx context.Context, nc *NodeClient, op domain.PendingOp) error {
	switch op.Type {
	case domain.OpCreateList:
		var list domain.List
		if err := json.Unmarshal(op.Data, &list); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		_, err := nc.CreateList(ctx, list)
		if err != nil && !recoverable(err, false) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	case domain.OpDeleteList:
		var payload struct{ ListID string `json:"listId"` }
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		if err := nc.DeleteList(ctx, payload.ListID); err != nil && !recoverable(err, true) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	case domain.OpAddItem:
		var item domain.Item
		if err := json.Unmarshal(op.Data, &item); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		_, err := nc.AddItem(ctx, item)
		if err != nil && !recoverable(err, false) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	case domain.OpUpdateName:
		var item domain.Item
		if err := json.Unmarshal(op.Data, &item); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		if _, err := nc.UpdateName(ctx, item); err != nil && !recoverable(err, false) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	case domain.OpUpdateQuantity:
		var item domain.Item
		if err := json.Unmarshal(op.Data, &item); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		if _, err := nc.UpdateQuantity(ctx, item); err != nil && !recoverable(err, false) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	case domain.OpToggleCheck:
		var item domain.Item
		if err := json.Unmarshal(op.Data, &item); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		if _, err := nc.ToggleItem(ctx, item); err != nil && !recoverable(err, false) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	case domain.OpRemoveItem:
		var payload struct{ ItemID string `json:"itemId"` }
		if err := json.Unmarshal(op.Data, &payload); err != nil {
			return apierr.Internal("decode pending op", err)
		}
		if err := nc.RemoveItem(ctx, payload.ItemID); err != nil && !recoverable(err, true) {
			return fmt.Errorf("push %s: %w", op.ID, err)
		}
	default:
		return apierr.Internal(fmt.Sprintf("unknown pending op type %q", op.Type), nil)
	}
	return nil
}

func (s *SyncEngine) pullKnownLists(ctx context.Context, nc *NodeClient, result *SyncResult) error {
	lists, err := s.store.AllLists()
	if err != nil {
		return apierr.Internal("load local lists", err)
	}

	for _, localList := range lists {
		snapshot, err := nc.GetList(ctx, localList.ID)
		if err != nil {
			if recoverable(err, true) {
				continue
			}
			return fmt.Errorf("pull list %s: %w", localList.ID, err)
		}
		result.Pulled++

		mergedList, _ := domain.ApplyIncomingList(&localList, snapshot.List)
		if err := s.store.SaveList(mergedList); err != nil {
			return apierr.Internal("persist merged list", err)
		}

		for _, remoteItem := range snapshot.Items {
			localItem, err := s.store.GetItem(remoteItem.ID)
			var merged domain.Item
			if err != nil {
				merged = remoteItem
			} else {
				merged, _ = domain.ApplyIncomingItem(&localItem, remoteItem, domain.ScopeAll)
			}
			if err := s.store.SaveItem(merged); err != nil {
				return apierr.Internal("persist merged item", err)
			}
			result.Merged++
		}
	}
	return nil
}
