// Package storage provides the durable bbolt-backed store used by both a
// cluster node (C5: Lists, Items, node identity, hinted-handoff queue) and
// a client (C5/C11: the same Lists/Items plus the pending-operation queue
// and the last-sync watermark). Every bucket holds JSON-marshaled values
// keyed by id, following the same shape gophkeeper's boltdb storage uses.
package storage

import (
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketLists      = []byte("lists")
	bucketItems      = []byte("items")
	bucketPendingOps = []byte("pending_ops")
	bucketHints      = []byte("hints")
	bucketMetadata   = []byte("metadata")
)

// ErrNotFound is returned when a lookup by id finds no record.
var ErrNotFound = errors.New("storage: not found")

// ErrClosed is not returned by any Store method; an operation issued after
// Close fails with the error bbolt reports for a closed database.
var ErrClosed = errors.New("storage: closed")

// Store wraps a single bbolt database file holding every bucket this
// module needs; node and client processes each open their own Store at a
// distinct path.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures every
// bucket this package uses exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketLists, bucketItems, bucketPendingOps, bucketHints, bucketMetadata} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("storage: create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
