package node

import (
	"encoding/json"
	"testing"

	"github.com/go-kit/log"

	"github.com/listring/listring/internal/gossip"
	"github.com/listring/listring/internal/transport"
)

func TestHandleGossipMergesAndRepliesWithLocalView(t *testing.T) {
	members := gossip.NewMemberList("A", "a-addr", 0)
	members.AddSeed("B", "b-addr")
	loop := NewGossipLoop(members, transport.NewChannel(), log.NewNopLogger())

	remote := []gossip.MemberEntry{{NodeID: "C", Addr: "c-addr", Heartbeat: 7}}
	data, err := json.Marshal(remote)
	if err != nil {
		t.Fatal(err)
	}

	reply := loop.HandleGossip(transport.Message{Type: transport.MsgGossip, Data: data})
	if !reply.IsOK() {
		t.Fatalf("expected ok reply, got %+v", reply)
	}

	if addr, ok := members.Addr("C"); !ok || addr != "c-addr" {
		t.Fatalf("expected C to be merged in, got addr=%s ok=%v", addr, ok)
	}

	var entries []gossip.MemberEntry
	if err := json.Unmarshal(reply.Data, &entries); err != nil {
		t.Fatal(err)
	}
	var sawA bool
	for _, e := range entries {
		if e.NodeID == "A" {
			sawA = true
		}
	}
	if !sawA {
		t.Fatalf("expected local view to include self, got %+v", entries)
	}
}

func TestHandleGossipRejectsMalformedPayload(t *testing.T) {
	members := gossip.NewMemberList("A", "a-addr", 0)
	loop := NewGossipLoop(members, transport.NewChannel(), log.NewNopLogger())

	reply := loop.HandleGossip(transport.Message{Type: transport.MsgGossip, Data: []byte("not json")})
	if reply.IsOK() {
		t.Fatal("expected malformed payload to be rejected")
	}
}
