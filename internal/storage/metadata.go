package storage

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

const (
	keyNodeID            = "node_id"
	keyLastSyncWatermark = "last_sync_watermark"
)

// SaveNodeID persists the identity this store's owning process should
// present on every future start, so a node or client doesn't need it
// supplied externally after its first run.
func (s *Store) SaveNodeID(nodeID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMetadata).Put([]byte(keyNodeID), []byte(nodeID))
	})
}

// NodeID returns the previously saved node identity, or "" if none has
// been saved yet.
func (s *Store) NodeID() (string, error) {
	var id string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMetadata).Get([]byte(keyNodeID))
		if v != nil {
			id = string(v)
		}
		return nil
	})
	return id, err
}

// SaveLastSyncWatermark records the millisecond timestamp of the most
// recent successful sync, the high-water mark a client's next push/pull
// cycle resumes from (spec §4.11).
func (s *Store) SaveLastSyncWatermark(timestamp int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(timestamp))
		return tx.Bucket(bucketMetadata).Put([]byte(keyLastSyncWatermark), buf)
	})
}

// LastSyncWatermark returns the last saved sync watermark, or 0 if no sync
// has completed yet.
func (s *Store) LastSyncWatermark() (int64, error) {
	var ts int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		buf := tx.Bucket(bucketMetadata).Get([]byte(keyLastSyncWatermark))
		if buf == nil {
			return nil
		}
		if len(buf) != 8 {
			return fmt.Errorf("storage: corrupt sync watermark: %d bytes", len(buf))
		}
		ts = int64(binary.BigEndian.Uint64(buf))
		return nil
	})
	return ts, err
}
