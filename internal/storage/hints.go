package storage

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/listring/listring/internal/domain"
)

// SaveHint durably enqueues hint so it survives a node restart between
// being queued and flushed (spec §4.9 "Hinted handoff"). The key is a
// time-ordered (version 7) uuid, not the target node id, since a node may
// accumulate many hints for the same unreachable peer; bbolt's key order is
// therefore the order the hints were queued in.
func (s *Store) SaveHint(hint domain.Hint) error {
	data, err := json.Marshal(hint)
	if err != nil {
		return fmt.Errorf("storage: marshal hint: %w", err)
	}
	key := uuid.Must(uuid.NewV7()).String()
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHints).Put([]byte(key), data)
	})
}

// HintEntry pairs a hint with the opaque key it was stored under, so a
// caller can delete exactly the entries it successfully flushed.
type HintEntry struct {
	Key  string
	Hint domain.Hint
}

// HintsForNode returns every queued hint targeting nodeID along with the
// storage key each is filed under.
func (s *Store) HintsForNode(nodeID string) ([]HintEntry, error) {
	var out []HintEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHints).ForEach(func(k, v []byte) error {
			var hint domain.Hint
			if err := json.Unmarshal(v, &hint); err != nil {
				return fmt.Errorf("storage: unmarshal hint: %w", err)
			}
			if hint.TargetNodeID == nodeID {
				out = append(out, HintEntry{Key: string(k), Hint: hint})
			}
			return nil
		})
	})
	return out, err
}

// HintTargets returns the distinct set of node ids with at least one
// queued hint, so the handoff flusher knows which peers to attempt without
// scanning the whole bucket once per known node.
func (s *Store) HintTargets() ([]string, error) {
	seen := make(map[string]struct{})
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHints).ForEach(func(_, v []byte) error {
			var hint domain.Hint
			if err := json.Unmarshal(v, &hint); err != nil {
				return fmt.Errorf("storage: unmarshal hint: %w", err)
			}
			seen[hint.TargetNodeID] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(seen))
	for id := range seen {
		targets = append(targets, id)
	}
	return targets, nil
}

// DeleteHint removes the hint filed under key, called once its replay has
// been acknowledged by the target node.
func (s *Store) DeleteHint(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketHints).Delete([]byte(key))
	})
}
