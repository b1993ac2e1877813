package node

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/listring/listring/internal/gossip"
	"github.com/listring/listring/internal/transport"
)

// GossipLoop runs the liveness-only gossip protocol (spec §7 "Gossip-based
// liveness") alongside a node's replication traffic. It never changes ring
// membership; it only keeps each node's view of which peers are currently
// reachable fresh, so C8 and the hinted-handoff drain loop can skip a
// doomed round-trip to a peer already known down.
type GossipLoop struct {
	members *gossip.MemberList
	channel *transport.Channel
	timeout time.Duration
	logger  log.Logger
}

// NewGossipLoop returns a loop gossiping members over channel.
func NewGossipLoop(members *gossip.MemberList, channel *transport.Channel, logger log.Logger) *GossipLoop {
	return &GossipLoop{members: members, channel: channel, timeout: time.Second, logger: logger}
}

// Run ticks once per interval until ctx is canceled, each round advancing
// the local heartbeat and exchanging membership views with one random peer.
func (g *GossipLoop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.round()
		}
	}
}

func (g *GossipLoop) round() {
	g.members.Tick()

	peer, ok := g.members.RandomPeer()
	if !ok {
		return
	}
	addr, ok := g.members.Addr(peer.NodeID)
	if !ok {
		return
	}

	data, err := json.Marshal(g.members.Entries())
	if err != nil {
		return
	}
	reply, err := g.channel.Send(peer.NodeID, addr, transport.Message{Type: transport.MsgGossip, Data: data}, g.timeout)
	if err != nil || !reply.IsOK() {
		level.Debug(g.logger).Log("msg", "gossip round failed", "peer", peer.NodeID, "err", err)
		return
	}

	var remote []gossip.MemberEntry
	if err := json.Unmarshal(reply.Data, &remote); err != nil {
		return
	}
	g.members.Merge(remote)
}

// HandleGossip answers an incoming gossip round: merge the sender's view in
// and reply with the local view, so both sides converge in one round-trip.
func (g *GossipLoop) HandleGossip(msg transport.Message) transport.Message {
	var remote []gossip.MemberEntry
	if err := json.Unmarshal(msg.Data, &remote); err != nil {
		return transport.Error("malformed gossip payload")
	}
	g.members.Merge(remote)

	reply, err := transport.OK(g.members.Entries())
	if err != nil {
		return transport.Error(err.Error())
	}
	return reply
}
