package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/listring/listring/internal/domain"
)

// SavePendingOp upserts op, keyed by its id. A client enqueues one of these
// for every local mutation before it has been acknowledged by a quorum
// (spec §4.11's local-first write path).
func (s *Store) SavePendingOp(op domain.PendingOp) error {
	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("storage: marshal pending op: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPendingOps).Put([]byte(op.ID), data)
	})
}

// UnsyncedOps returns every pending op not yet marked synced, ordered by
// Timestamp ascending so the sync loop replays writes in the order the
// user issued them.
func (s *Store) UnsyncedOps() ([]domain.PendingOp, error) {
	var out []domain.PendingOp
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPendingOps).ForEach(func(_, v []byte) error {
			var op domain.PendingOp
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("storage: unmarshal pending op: %w", err)
			}
			if !op.Synced {
				out = append(out, op)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// MarkSynced flags op id as synced without removing it, so a crash between
// marking and clearing cannot lose the record of what was sent.
func (s *Store) MarkSynced(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPendingOps)
		data := bucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var op domain.PendingOp
		if err := json.Unmarshal(data, &op); err != nil {
			return fmt.Errorf("storage: unmarshal pending op: %w", err)
		}
		op.Synced = true
		updated, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("storage: marshal pending op: %w", err)
		}
		return bucket.Put([]byte(id), updated)
	})
}

// ClearSynced deletes every pending op already marked synced.
func (s *Store) ClearSynced() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketPendingOps)
		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var op domain.PendingOp
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("storage: unmarshal pending op: %w", err)
			}
			if op.Synced {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := bucket.Delete(key); err != nil {
				return fmt.Errorf("storage: delete pending op: %w", err)
			}
		}
		return nil
	})
}

// PendingCount returns the number of ops not yet marked synced, used to
// surface sync backlog to the client's user interface.
func (s *Store) PendingCount() (int, error) {
	ops, err := s.UnsyncedOps()
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}
