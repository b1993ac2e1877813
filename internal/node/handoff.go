package node

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/storage"
	"github.com/listring/listring/internal/transport"
)

// HandoffFlusher periodically redelivers queued hints to the replicas they
// target, once those replicas are reachable again (spec §4.9 "Hinted
// handoff"). It owns no state the write path depends on; a node that never
// starts one simply never drains its hint backlog.
type HandoffFlusher struct {
	store   *storage.Store
	channel *transport.Channel
	peers   func(nodeID string) (addr string, ok bool)
	logger  log.Logger
}

// NewHandoffFlusher returns a flusher that resolves hint targets via peers.
func NewHandoffFlusher(store *storage.Store, channel *transport.Channel, peers func(nodeID string) (addr string, ok bool), logger log.Logger) *HandoffFlusher {
	return &HandoffFlusher{store: store, channel: channel, peers: peers, logger: logger}
}

// Run flushes every known target's hint queue once per interval until ctx
// is canceled.
func (f *HandoffFlusher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flushKnownTargets()
		}
	}
}

func (f *HandoffFlusher) flushKnownTargets() {
	targets, err := f.store.HintTargets()
	if err != nil {
		level.Warn(f.logger).Log("msg", "failed to list hint targets", "err", err)
		return
	}
	for _, target := range targets {
		f.flushTarget(target)
	}
}

// flushTarget drains target's hint queue in FIFO order, stopping at the
// first failed redelivery so later ordering-dependent hints aren't applied
// out of turn against a replica that just proved unreachable again.
func (f *HandoffFlusher) flushTarget(target string) {
	entries, err := f.store.HintsForNode(target)
	if err != nil {
		level.Warn(f.logger).Log("msg", "failed to load hints", "target", target, "err", err)
		return
	}
	addr, ok := f.peers(target)
	if !ok {
		return
	}

	for _, entry := range entries {
		msg := replicaOpToMessage(entry.Hint.Operation)
		reply, err := f.channel.Send(target, addr, msg, time.Second)
		if err != nil || !reply.IsOK() {
			level.Debug(f.logger).Log("msg", "hint redelivery failed, will retry next interval", "target", target)
			return
		}
		if err := f.store.DeleteHint(entry.Key); err != nil {
			level.Warn(f.logger).Log("msg", "failed to delete delivered hint", "target", target, "err", err)
		}
	}
	level.Info(f.logger).Log("msg", "drained hint queue", "target", target, "count", len(entries))
}

// replicaOpToMessage rebuilds the original C7 request envelope from a
// queued ReplicaOp, so a redelivered hint is indistinguishable on the wire
// from the write that failed to reach its target the first time.
func replicaOpToMessage(op domain.ReplicaOp) transport.Message {
	return transport.Message{
		Type:   transport.MessageType(op.Type),
		List:   op.List,
		Item:   op.Item,
		ItemID: op.ItemID,
		ListID: op.ListID,
	}
}
