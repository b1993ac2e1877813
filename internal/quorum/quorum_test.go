package quorum

import (
	"context"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/listring/listring/internal/ring"
	"github.com/listring/listring/internal/transport"
)

// startTestPeer spins up a transport.Listener that always replies ok, and
// returns its address plus a teardown func.
func startTestPeer(t *testing.T) (addr string, teardown func()) {
	t.Helper()
	ln, err := transport.Listen("127.0.0.1:0", func(msg transport.Message) transport.Message {
		reply, _ := transport.OK(nil)
		return reply
	}, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go ln.Serve(ctx)
	return ln.Addr().String(), func() { cancel(); ln.Close() }
}

func TestWriteSucceedsWhenWIsMet(t *testing.T) {
	addr1, teardown1 := startTestPeer(t)
	defer teardown1()
	addr2, teardown2 := startTestPeer(t)
	defer teardown2()

	r, err := ring.New([]string{"local", "n1", "n2"}, 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	peers := map[string]string{"n1": addr1, "n2": addr2}
	coord := New(r, transport.NewChannel(), func(id string) (string, bool) { a, ok := peers[id]; return a, ok }, time.Second)

	result, err := coord.Write("any-key", "local", transport.Message{Type: transport.MsgAddItem})
	if err != nil {
		t.Fatalf("expected write quorum to be met, got error: %v", err)
	}
	if len(result.Succeeded) < 2 {
		t.Fatalf("expected at least 2 successes, got %v", result.Succeeded)
	}
}

func TestWriteFailsWhenPeersUnreachable(t *testing.T) {
	r, err := ring.New([]string{"local", "n1", "n2"}, 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	coord := New(r, transport.NewChannel(), func(id string) (string, bool) { return "", false }, 200*time.Millisecond)

	result, err := coord.Write("any-key", "local", transport.Message{Type: transport.MsgAddItem})
	if err == nil {
		t.Fatalf("expected quorum failure when no peer is reachable")
	}
	if len(result.Succeeded) != 1 { // only the local apply
		t.Fatalf("expected exactly 1 success (local), got %v", result.Succeeded)
	}
}

func TestReadCollectsRepliesAndRequiresR(t *testing.T) {
	addr1, teardown1 := startTestPeer(t)
	defer teardown1()
	addr2, teardown2 := startTestPeer(t)
	defer teardown2()

	r, err := ring.New([]string{"local", "n1", "n2"}, 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	peers := map[string]string{"n1": addr1, "n2": addr2}
	coord := New(r, transport.NewChannel(), func(id string) (string, bool) { a, ok := peers[id]; return a, ok }, time.Second)

	replies, err := coord.Read("any-key", "local", transport.Message{Type: transport.MsgRead}, nil)
	if err != nil {
		t.Fatalf("expected read quorum to be met, got error: %v", err)
	}
	if len(replies) < 2 {
		t.Fatalf("expected at least 2 replies, got %d", len(replies))
	}
}

func TestReadFailsBelowR(t *testing.T) {
	r, err := ring.New([]string{"local", "n1", "n2"}, 3, 2, 2)
	if err != nil {
		t.Fatal(err)
	}

	coord := New(r, transport.NewChannel(), func(id string) (string, bool) { return "", false }, 200*time.Millisecond)

	_, err = coord.Read("any-key", "local", transport.Message{Type: transport.MsgRead}, nil)
	if err == nil {
		t.Fatalf("expected read quorum failure with no reachable replicas")
	}
}
