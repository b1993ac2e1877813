package crdt

// Register is a last-writer-wins register over an opaque value, tie-broken
// deterministically on writer node id when timestamps collide (spec §4.2).
type Register struct {
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	WriterID  string `json:"writerId"`
}

// NewRegister creates a register already holding value, stamped as written
// by writerID at timestamp (millisecond wall-clock).
func NewRegister(value, writerID string, timestamp int64) Register {
	return Register{Value: value, Timestamp: timestamp, WriterID: writerID}
}

// Set records a new value as written by writerID at timestamp.
func (r *Register) Set(value, writerID string, timestamp int64) {
	r.Value = value
	r.Timestamp = timestamp
	r.WriterID = writerID
}

// Merge adopts other's state iff other's timestamp strictly exceeds r's, or
// the timestamps tie and other's writer id sorts lexicographically after
// r's. Merge is commutative, associative and idempotent.
func (r Register) Merge(other Register) Register {
	if other.Timestamp > r.Timestamp {
		return other
	}
	if other.Timestamp == r.Timestamp && other.WriterID > r.WriterID {
		return other
	}
	return r
}
