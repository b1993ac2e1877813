package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrTimeout is returned by Send when every Lazy-Pirate attempt times out.
var ErrTimeout = errors.New("transport: timed out")

// RMax is the maximum number of Lazy-Pirate attempts per Send call
// (spec §4.7).
const RMax = 3

// peer holds the single persistent connection to one remote node, guarded
// by a mutex so the channel is never used by two callers at once — the
// underlying protocol is strict request/reply, not multiplexed.
type peer struct {
	mu   sync.Mutex
	addr string
	conn net.Conn
}

// Channel is a node's collection of outbound peer connections, one per
// remote node id.
type Channel struct {
	mu    sync.Mutex
	peers map[string]*peer
}

// NewChannel returns a channel with no open connections; they are dialed
// lazily on first use.
func NewChannel() *Channel {
	return &Channel{peers: make(map[string]*peer)}
}

func (c *Channel) peerFor(nodeID, addr string) *peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[nodeID]
	if !ok {
		p = &peer{addr: addr}
		c.peers[nodeID] = p
	}
	return p
}

// Send delivers msg to the node at addr (identified by nodeID, for
// connection reuse), enforcing single-in-flight per peer and Lazy-Pirate
// retry: on timeout the connection is closed and redialed before the next
// attempt, up to RMax attempts total.
func (c *Channel) Send(nodeID, addr string, msg Message, timeout time.Duration) (Message, error) {
	p := c.peerFor(nodeID, addr)

	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= RMax; attempt++ {
		reply, err := p.sendOnce(msg, timeout)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		p.close()
	}
	return Message{}, fmt.Errorf("transport: %d attempts to %s failed: %w", RMax, nodeID, lastErr)
}

func (p *peer) ensureConn() error {
	if p.conn != nil {
		return nil
	}
	conn, err := net.Dial("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", p.addr, err)
	}
	p.conn = conn
	return nil
}

func (p *peer) close() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *peer) sendOnce(msg Message, timeout time.Duration) (Message, error) {
	if err := p.ensureConn(); err != nil {
		return Message{}, err
	}

	deadline := time.Now().Add(timeout)
	if err := p.conn.SetDeadline(deadline); err != nil {
		return Message{}, err
	}

	if err := json.NewEncoder(p.conn).Encode(msg); err != nil {
		return Message{}, fmt.Errorf("transport: write: %w", err)
	}

	var reply Message
	if err := json.NewDecoder(p.conn).Decode(&reply); err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return Message{}, ErrTimeout
		}
		return Message{}, fmt.Errorf("transport: read: %w", err)
	}

	return reply, nil
}
