package storage

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/listring/listring/internal/domain"
)

// SaveItem upserts item, keyed by its id.
func (s *Store) SaveItem(item domain.Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("storage: marshal item: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).Put([]byte(item.ID), data)
	})
}

// GetItem returns the item stored under id, or ErrNotFound.
func (s *Store) GetItem(id string) (domain.Item, error) {
	var item domain.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketItems).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &item)
	})
	return item, err
}

// DeleteItem removes item id.
func (s *Store) DeleteItem(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).Delete([]byte(id))
	})
}

// ItemsByList returns every item stored with the given listID.
func (s *Store) ItemsByList(listID string) ([]domain.Item, error) {
	var out []domain.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(_, v []byte) error {
			var item domain.Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("storage: unmarshal item: %w", err)
			}
			if item.ListID == listID {
				out = append(out, item)
			}
			return nil
		})
	})
	return out, err
}

// AllItems returns every item in the store, in no particular order.
func (s *Store) AllItems() ([]domain.Item, error) {
	var out []domain.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(_, v []byte) error {
			var item domain.Item
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("storage: unmarshal item: %w", err)
			}
			out = append(out, item)
			return nil
		})
	})
	return out, err
}
