package node

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/listring/listring/internal/domain"
	"github.com/listring/listring/internal/gossip"
	"github.com/listring/listring/internal/storage"
	"github.com/listring/listring/internal/transport"
)

func newTestAntiEntropyLoop(t *testing.T, nodeID string, members *gossip.MemberList, channel *transport.Channel) (*AntiEntropyLoop, *storage.Store, *domain.ItemSet) {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/node.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	items := domain.NewItemSet(nodeID)
	return NewAntiEntropyLoop(nodeID, store, items, members, channel, log.NewNopLogger()), store, items
}

func TestLocalDigestsCoverListsAndItems(t *testing.T) {
	members := gossip.NewMemberList("A", "a-addr", time.Minute)
	loop, store, items := newTestAntiEntropyLoop(t, "A", members, transport.NewChannel())

	list := domain.NewList("L1", "Weekly", "A", 100)
	if err := store.SaveList(list); err != nil {
		t.Fatal(err)
	}
	item := domain.NewItem("I1", "L1", "Milk", "A", 2, 0, 200)
	items.Add(item)

	digests, err := loop.localDigests()
	if err != nil {
		t.Fatal(err)
	}
	if len(digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(digests))
	}
}

func TestHandleAntiEntropyReturnsLocalDigests(t *testing.T) {
	members := gossip.NewMemberList("B", "b-addr", time.Minute)
	loop, store, _ := newTestAntiEntropyLoop(t, "B", members, transport.NewChannel())

	list := domain.NewList("L1", "Weekly", "B", 100)
	if err := store.SaveList(list); err != nil {
		t.Fatal(err)
	}

	reply := loop.HandleAntiEntropy(transport.Message{Type: transport.MsgAntiEntropy})
	if !reply.IsOK() {
		t.Fatalf("expected ok reply, got %+v", reply)
	}
}

// TestRoundPullsDivergentListFromPeer runs a real peer over loopback TCP: B
// holds a list A has never seen, so A's anti-entropy round should discover
// the divergence via digests and pull the full list afterward.
func TestRoundPullsDivergentListFromPeer(t *testing.T) {
	channelB := transport.NewChannel()
	membersB := gossip.NewMemberList("B", "", time.Minute)
	loopB, storeB, _ := newTestAntiEntropyLoop(t, "B", membersB, channelB)

	list := domain.NewList("L1", "Weekly", "B", 100)
	if err := storeB.SaveList(list); err != nil {
		t.Fatal(err)
	}

	listener, err := transport.Listen("127.0.0.1:0", func(msg transport.Message) transport.Message {
		switch msg.Type {
		case transport.MsgAntiEntropy:
			return loopB.HandleAntiEntropy(msg)
		case transport.MsgRead:
			if msg.DataType == transport.DataTypeList {
				l, err := storeB.GetList(msg.ListID)
				if err != nil {
					return transport.Error("not found")
				}
				reply, _ := transport.OK(l)
				return reply
			}
		}
		return transport.Error("unhandled")
	}, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx)

	addr := listener.Addr().String()
	membersA := gossip.NewMemberList("A", "", time.Minute)
	membersA.AddSeed("B", addr)
	channelA := transport.NewChannel()
	loopA, storeA, _ := newTestAntiEntropyLoop(t, "A", membersA, channelA)

	loopA.round()

	pulled, err := storeA.GetList("L1")
	if err != nil {
		t.Fatalf("expected list pulled from peer, err=%v", err)
	}
	if pulled.Name.Value != "Weekly" {
		t.Fatalf("expected pulled list name, got %+v", pulled)
	}
}
