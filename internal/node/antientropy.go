package node

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/gossip"
	"github.com/listring/listring/internal/merkle"
	"github.com/listring/listring/internal/storage"
	"github.com/listring/listring/internal/transport"
)

const (
	listDigestPrefix = "list:"
	itemDigestPrefix = "item:"
)

// AntiEntropyLoop runs the Merkle-tree anti-entropy pass (spec §7
// "Merkle-tree anti-entropy"): periodically it compares its own
// (listId|itemId) -> lastUpdated digest set against one peer's, and pulls
// full CRDT state for every key that diverged. This heals a replica that
// missed an update without ever being dispatched to at write time (so
// hinted handoff, which only redelivers to replicas that *were* dispatched
// to, never gets a chance to fix it).
type AntiEntropyLoop struct {
	nodeID  string
	store   *storage.Store
	items   *domain.ItemSet
	members *gossip.MemberList
	channel *transport.Channel
	timeout time.Duration
	logger  log.Logger
}

// NewAntiEntropyLoop returns a loop reconciling store/items against peers
// known to members.
func NewAntiEntropyLoop(nodeID string, store *storage.Store, items *domain.ItemSet, members *gossip.MemberList, channel *transport.Channel, logger log.Logger) *AntiEntropyLoop {
	return &AntiEntropyLoop{nodeID: nodeID, store: store, items: items, members: members, channel: channel, timeout: time.Second, logger: logger}
}

// Run ticks once per interval until ctx is canceled, each round
// reconciling against one randomly chosen peer.
func (a *AntiEntropyLoop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.round()
		}
	}
}

func (a *AntiEntropyLoop) round() {
	peer, ok := a.members.RandomPeer()
	if !ok || !a.members.IsAlive(peer.NodeID) {
		return
	}
	addr, ok := a.members.Addr(peer.NodeID)
	if !ok {
		return
	}

	local, err := a.localDigests()
	if err != nil {
		level.Warn(a.logger).Log("msg", "failed to build local digest set", "err", err)
		return
	}

	data, err := json.Marshal(local)
	if err != nil {
		return
	}
	reply, err := a.channel.Send(peer.NodeID, addr, transport.Message{Type: transport.MsgAntiEntropy, Data: data}, a.timeout)
	if err != nil || !reply.IsOK() {
		level.Debug(a.logger).Log("msg", "anti-entropy round failed", "peer", peer.NodeID, "err", err)
		return
	}

	var remote []merkle.KeyHash
	if err := json.Unmarshal(reply.Data, &remote); err != nil {
		return
	}

	divergent := merkle.DivergentKeys(local, remote)
	if len(divergent) == 0 {
		return
	}
	level.Info(a.logger).Log("msg", "anti-entropy found divergent keys", "peer", peer.NodeID, "count", len(divergent))
	for _, key := range divergent {
		a.pull(peer.NodeID, addr, key)
	}
}

// HandleAntiEntropy answers a peer's digest set with the local one; the
// peer computes the divergence itself and follows up with per-key reads, so
// this handler never blocks on anything but building the local digest.
func (a *AntiEntropyLoop) HandleAntiEntropy(msg transport.Message) transport.Message {
	local, err := a.localDigests()
	if err != nil {
		return transport.Error(err.Error())
	}
	reply, err := transport.OK(local)
	if err != nil {
		return transport.Error(err.Error())
	}
	return reply
}

func (a *AntiEntropyLoop) localDigests() ([]merkle.KeyHash, error) {
	lists, err := a.store.AllLists()
	if err != nil {
		return nil, err
	}
	items := a.items.All()

	out := make([]merkle.KeyHash, 0, len(lists)+len(items))
	for _, l := range lists {
		out = append(out, merkle.DigestKey(listDigestPrefix+l.ID, l.LastUpdated))
	}
	for _, it := range items {
		out = append(out, merkle.DigestKey(itemDigestPrefix+it.ID, it.LastUpdated))
	}
	return out, nil
}

// pull fetches key's full state from peer and merges it through the same
// CRDT state machine a replicated write uses.
func (a *AntiEntropyLoop) pull(peerID, addr, key string) {
	switch {
	case strings.HasPrefix(key, listDigestPrefix):
		a.pullList(peerID, addr, strings.TrimPrefix(key, listDigestPrefix))
	case strings.HasPrefix(key, itemDigestPrefix):
		a.pullItem(peerID, addr, strings.TrimPrefix(key, itemDigestPrefix))
	}
}

func (a *AntiEntropyLoop) pullList(peerID, addr, listID string) {
	msg := transport.Message{Type: transport.MsgRead, DataType: transport.DataTypeList, ListID: listID}
	reply, err := a.channel.Send(peerID, addr, msg, a.timeout)
	if err != nil || !reply.IsOK() {
		return
	}
	var remote domain.List
	if err := json.Unmarshal(reply.Data, &remote); err != nil {
		return
	}

	existing, err := a.store.GetList(listID)
	var basePtr *domain.List
	if err == nil {
		basePtr = &existing
	}
	merged, _ := domain.ApplyIncomingList(basePtr, remote)
	if err := a.store.SaveList(merged); err != nil {
		level.Warn(a.logger).Log("msg", "anti-entropy failed to persist list", "list", listID, "err", err)
	}
}

func (a *AntiEntropyLoop) pullItem(peerID, addr, itemID string) {
	msg := transport.Message{Type: transport.MsgRead, DataType: transport.DataTypeItem, ItemID: itemID}
	reply, err := a.channel.Send(peerID, addr, msg, a.timeout)
	if err != nil || !reply.IsOK() {
		return
	}
	var remote domain.Item
	if err := json.Unmarshal(reply.Data, &remote); err != nil {
		return
	}

	existing, hasLocal := a.items.Get(itemID)
	var basePtr *domain.Item
	if hasLocal {
		basePtr = &existing
	}
	merged, _ := domain.ApplyIncomingItem(basePtr, remote, domain.ScopeAll)
	if hasLocal {
		a.items.Put(merged.ID, merged)
	} else {
		a.items.Add(merged)
	}
	if err := a.store.SaveItem(merged); err != nil {
		level.Warn(a.logger).Log("msg", "anti-entropy failed to persist item", "item", itemID, "err", err)
	}
}
