package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-kit/log"
)

func TestSendAndReceiveRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0", func(msg Message) Message {
		if msg.Type != MsgRead {
			return Error("unexpected type")
		}
		reply, _ := OK(map[string]string{"echo": msg.Key})
		return reply
	}, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	ch := NewChannel()
	reply, err := ch.Send("node-1", ln.Addr().String(), Message{Type: MsgRead, Key: "k1", DataType: DataTypeItem}, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reply.IsOK() {
		t.Fatalf("expected ok reply, got %v", reply)
	}

	var decoded map[string]string
	if err := json.Unmarshal(reply.Data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["echo"] != "k1" {
		t.Fatalf("expected echo of k1, got %v", decoded)
	}
}

func TestSendReusesConnectionAcrossCalls(t *testing.T) {
	calls := 0
	ln, err := Listen("127.0.0.1:0", func(msg Message) Message {
		calls++
		reply, _ := OK(calls)
		return reply
	}, log.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ln.Serve(ctx)

	ch := NewChannel()
	for i := 0; i < 3; i++ {
		if _, err := ch.Send("node-1", ln.Addr().String(), Message{Type: MsgRead, Key: "k"}, time.Second); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if calls != 3 {
		t.Fatalf("expected server to have handled 3 calls, got %d", calls)
	}
}

func TestSendFailsAfterRMaxAttemptsWhenUnreachable(t *testing.T) {
	ch := NewChannel()
	_, err := ch.Send("ghost", "127.0.0.1:1", Message{Type: MsgRead, Key: "k"}, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected error dialing an unreachable peer")
	}
}
