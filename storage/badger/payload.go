package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/graphmill/core"
	"github.com/poiesic/graphmill/storage"
)

// PayloadStore implements storage.PayloadStore for BadgerDB. Documents are
// keyed by content hash, so writing the same payload twice is idempotent.
type PayloadStore struct {
	backend *Backend
}

var _ storage.PayloadStore = (*PayloadStore)(nil)

// NewPayloadStore creates a new PayloadStore.
func NewPayloadStore(backend *Backend) *PayloadStore {
	return &PayloadStore{backend: backend}
}

// PutPayload stores a payload document and returns its content-based key.
func (s *PayloadStore) PutPayload(ctx context.Context, doc *storage.PayloadDocument) (core.ID, error) {
	data, err := storage.MarshalPayload(doc)
	if err != nil {
		return 0, errors.Join(storage.ErrSerializationFailed, err)
	}
	ref := core.IDFromContent(data)

	err = s.backend.WithTx(func(tx *badger.Txn) error {
		key := makePayloadKey(ref)
		// Content-addressed: an existing entry already holds identical bytes
		if _, err := tx.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := tx.Set(key, data); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return 0, err
	}
	return ref, nil
}

// GetPayload retrieves a payload document by key.
func (s *PayloadStore) GetPayload(ctx context.Context, ref core.ID) (*storage.PayloadDocument, error) {
	var doc *storage.PayloadDocument

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePayloadKey(ref))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = storage.UnmarshalPayload(val)
			return err
		})
	}, false)

	if err != nil {
		return nil, err
	}
	return doc, nil
}
