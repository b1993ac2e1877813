package crdt

// PNCounter is a commutative counter built from two grow-only per-node
// tallies: increments (P) and decrements (N). Its value may be negative;
// spec §4.3 leaves non-negativity to the caller's UI contract, not the
// counter itself.
type PNCounter struct {
	P map[string]uint64 `json:"p"`
	N map[string]uint64 `json:"n"`
}

// NewPNCounter returns a zero-valued counter.
func NewPNCounter() PNCounter {
	return PNCounter{P: make(map[string]uint64), N: make(map[string]uint64)}
}

// Increment adds delta to nodeID's positive tally.
func (c *PNCounter) Increment(nodeID string, delta uint64) {
	c.ensureMaps()
	c.P[nodeID] += delta
}

// Decrement adds delta to nodeID's negative tally.
func (c *PNCounter) Decrement(nodeID string, delta uint64) {
	c.ensureMaps()
	c.N[nodeID] += delta
}

// Value returns sum(P) - sum(N).
func (c PNCounter) Value() int64 {
	var p, n int64
	for _, v := range c.P {
		p += int64(v)
	}
	for _, v := range c.N {
		n += int64(v)
	}
	return p - n
}

// Merge returns the per-node max of each tally map. Merge is commutative,
// associative and idempotent.
func (c PNCounter) Merge(other PNCounter) PNCounter {
	merged := NewPNCounter()
	for node, v := range c.P {
		merged.P[node] = v
	}
	for node, v := range other.P {
		if v > merged.P[node] {
			merged.P[node] = v
		}
	}
	for node, v := range c.N {
		merged.N[node] = v
	}
	for node, v := range other.N {
		if v > merged.N[node] {
			merged.N[node] = v
		}
	}
	return merged
}

// MergeMax resolves two concurrent absolute-target writes to the same
// counter by keeping whichever side's Value() is larger, breaking ties in
// favor of c. Every write this system ever sends across the wire carries
// an absolute target rather than a bare delta (SetTo, not Increment), so
// two concurrent writers' claims are alternatives, not composable deltas —
// summing their P/N tallies (Merge's ordinary G-counter semantics) would
// double-count both targets instead of picking the higher one. This is
// the resolution the worked "concurrent quantity edits" example calls for.
func (c PNCounter) MergeMax(other PNCounter) PNCounter {
	if other.Value() > c.Value() {
		return other.Copy()
	}
	return c.Copy()
}

// Copy returns an independent deep copy.
func (c PNCounter) Copy() PNCounter {
	cp := NewPNCounter()
	for k, v := range c.P {
		cp.P[k] = v
	}
	for k, v := range c.N {
		cp.N[k] = v
	}
	return cp
}

func (c *PNCounter) ensureMaps() {
	if c.P == nil {
		c.P = make(map[string]uint64)
	}
	if c.N == nil {
		c.N = make(map[string]uint64)
	}
}

// SetTo mutates the counter so that Value() becomes target, by computing
// the delta from the current value and applying Increment/Decrement for
// nodeID. This is how callers translate a target value (as arrives over
// the wire) into the counter's delta-based API, per spec §4.4 and the
// UPDATE_ITEM replay open question in §9.
func (c *PNCounter) SetTo(nodeID string, target int64) {
	delta := target - c.Value()
	switch {
	case delta > 0:
		c.Increment(nodeID, uint64(delta))
	case delta < 0:
		c.Decrement(nodeID, uint64(-delta))
	}
}
