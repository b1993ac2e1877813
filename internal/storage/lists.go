package storage

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/listring/listring/internal/domain"
)

// SaveList upserts list, keyed by its id.
func (s *Store) SaveList(list domain.List) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("storage: marshal list: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLists).Put([]byte(list.ID), data)
	})
}

// GetList returns the list stored under id, or ErrNotFound.
func (s *Store) GetList(id string) (domain.List, error) {
	var list domain.List
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketLists).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &list)
	})
	return list, err
}

// AllLists returns every list in the store, in no particular order.
func (s *Store) AllLists() ([]domain.List, error) {
	var out []domain.List
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLists).ForEach(func(_, v []byte) error {
			var list domain.List
			if err := json.Unmarshal(v, &list); err != nil {
				return fmt.Errorf("storage: unmarshal list: %w", err)
			}
			out = append(out, list)
			return nil
		})
	})
	return out, err
}

// DeleteList removes list id and every item belonging to it in a single
// transaction, the durable half of the atomic list-deletion invariant
// (spec §3 invariant 6); the in-memory half is ItemSet.RemoveAllForList.
func (s *Store) DeleteList(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLists).Delete([]byte(id)); err != nil {
			return fmt.Errorf("storage: delete list: %w", err)
		}

		items := tx.Bucket(bucketItems)
		var staleIDs [][]byte
		err := items.ForEach(func(k, v []byte) error {
			var item domain.Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("storage: unmarshal item: %w", err)
			}
			if item.ListID == id {
				staleIDs = append(staleIDs, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range staleIDs {
			if err := items.Delete(key); err != nil {
				return fmt.Errorf("storage: delete cascaded item: %w", err)
			}
		}
		return nil
	})
}
