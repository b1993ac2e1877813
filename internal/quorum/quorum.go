// Package quorum implements the quorum coordinator (C8, spec §4.8): it
// fans write and read requests out to a key's preference list over the
// node request channel (C7) and tallies responses against W/R.
package quorum

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/listring/listring/internal/ring"
	"github.com/listring/listring/internal/transport"
)

// ErrWriteQuorumNotMet is returned when fewer than W replicas acknowledge
// a write.
var ErrWriteQuorumNotMet = errors.New("quorum: write quorum not met")

// ErrReadQuorumNotMet is returned when fewer than R replicas answer a read
// within the timeout.
var ErrReadQuorumNotMet = errors.New("quorum: read quorum not met")

// PeerAddr resolves a node id to the address its transport listener binds.
type PeerAddr func(nodeID string) (addr string, ok bool)

// Coordinator dispatches quorum reads and writes for one cluster ring.
type Coordinator struct {
	Ring    *ring.Ring
	Channel *transport.Channel
	Peers   PeerAddr
	Timeout time.Duration // default 1s fanout timeout, spec §6
}

// New returns a Coordinator; timeout defaults to 1s if zero.
func New(r *ring.Ring, ch *transport.Channel, peers PeerAddr, timeout time.Duration) *Coordinator {
	if timeout == 0 {
		timeout = time.Second
	}
	return &Coordinator{Ring: r, Channel: ch, Peers: peers, Timeout: timeout}
}

// WriteResult reports which replicas in the preference list acknowledged a
// write and which did not, so the caller (C9) can hinted-handoff the
// failures.
type WriteResult struct {
	PreferenceList []string
	Succeeded      []string
	Failed         []string
}

// Write computes key's preference list, counts the local apply (already
// performed by the caller before invoking C8, per spec §4.8 step 2) as one
// success, and dispatches msg to every remote replica in parallel via C7.
// It returns success once at least W replicas (including local) have
// acknowledged.
func (c *Coordinator) Write(key, localNodeID string, msg transport.Message) (WriteResult, error) {
	prefList := c.Ring.PreferenceList(key)
	local, remote := ring.Split(prefList, localNodeID)

	result := WriteResult{PreferenceList: prefList}
	if local != "" {
		result.Succeeded = append(result.Succeeded, local)
	}

	var mu sync.Mutex
	var errs error
	var g errgroup.Group

	for _, nodeID := range remote {
		nodeID := nodeID
		addr, ok := c.Peers(nodeID)
		if !ok {
			mu.Lock()
			result.Failed = append(result.Failed, nodeID)
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			reply, err := c.Channel.Send(nodeID, addr, msg, c.Timeout)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || !reply.IsOK() {
				result.Failed = append(result.Failed, nodeID)
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", nodeID, err))
				}
				return nil
			}
			result.Succeeded = append(result.Succeeded, nodeID)
			return nil
		})
	}
	g.Wait() // collect-then-decide: every replica call completes before we tally (spec §9)

	if len(result.Succeeded) < c.Ring.W {
		return result, fmt.Errorf("%w: %d/%d acknowledged (replica errors: %v)", ErrWriteQuorumNotMet, len(result.Succeeded), c.Ring.W, errs)
	}
	return result, nil
}

// Read computes key's preference list and dispatches msg to every remote
// replica in parallel; localReply, if non-nil, is folded in without a
// network round trip (the local node already has its own value). It
// returns every ok reply collected within the timeout, requiring at least
// R of them.
func (c *Coordinator) Read(key, localNodeID string, msg transport.Message, localReply *transport.Message) ([]transport.Message, error) {
	prefList := c.Ring.PreferenceList(key)
	_, remote := ring.Split(prefList, localNodeID)

	var mu sync.Mutex
	var replies []transport.Message
	if localReply != nil && localReply.IsOK() {
		replies = append(replies, *localReply)
	}

	var g errgroup.Group
	for _, nodeID := range remote {
		nodeID := nodeID
		addr, ok := c.Peers(nodeID)
		if !ok {
			continue
		}
		g.Go(func() error {
			reply, err := c.Channel.Send(nodeID, addr, msg, c.Timeout)
			if err != nil || !reply.IsOK() {
				return nil // a replica timeout or error just means one fewer vote, not a fatal error
			}
			mu.Lock()
			replies = append(replies, reply)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	if len(replies) < c.Ring.R {
		return replies, fmt.Errorf("%w: %d/%d replicas answered", ErrReadQuorumNotMet, len(replies), c.Ring.R)
	}
	return replies, nil
}
