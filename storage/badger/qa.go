package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// QARepository implements storage.QARepository for BadgerDB.
// Entries are stored by id with a per-meeting index ordered by creation time.
type QARepository struct {
	backend *Backend
}

var _ storage.QARepository = (*QARepository)(nil)

// NewQARepository creates a new QARepository.
func NewQARepository(backend *Backend) *QARepository {
	return &QARepository{backend: backend}
}

// SaveQAEntry persists an entry and maintains the history index.
func (r *QARepository) SaveQAEntry(ctx context.Context, entry *core.QAEntry) error {
	if err := core.ValidateQAEntry(entry); err != nil {
		return err
	}
	if entry.Id == "" {
		return errors.Join(core.ErrInvalidQAEntry, storage.ErrInvalidQuery)
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		key := makeQAKey(entry.Id)

		// Drop the stale index entry if the creation time moved
		old, err := r.readQAEntry(tx, key)
		if err != nil {
			return err
		}
		if old != nil && !old.CreatedAt.Equal(entry.CreatedAt) {
			if err := tx.Delete(makeQAMeetingKey(old.MeetingID, old.CreatedAt.UnixMicro(), old.Id)); err != nil {
				return err
			}
		}

		value, err := storage.Marshal(entry)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		if err := tx.Set(makeQAMeetingKey(entry.MeetingID, entry.CreatedAt.UnixMicro(), entry.Id), []byte(entry.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetQAEntry retrieves an entry by id.
func (r *QARepository) GetQAEntry(ctx context.Context, id string) (*core.QAEntry, error) {
	var result *core.QAEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readQAEntry(tx, makeQAKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetQAHistory returns up to limit entries for a meeting, newest first.
func (r *QARepository) GetQAHistory(ctx context.Context, meetingID string, limit int) ([]*core.QAEntry, error) {
	var results []*core.QAEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, scopedPrefix(qaMeetingPrefix, meetingID), true, func(_, val []byte) (bool, error) {
			entry, err := r.readQAEntry(tx, makeQAKey(string(val)))
			if err != nil {
				return false, err
			}
			if entry != nil {
				results = append(results, entry)
			}
			return limit <= 0 || len(results) < limit, nil
		})
	}, false)
	return results, err
}

// readQAEntry returns nil, nil when the key is absent.
func (r *QARepository) readQAEntry(tx *badger.Txn, key []byte) (*core.QAEntry, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry *core.QAEntry
	err = item.Value(func(val []byte) error {
		entry, err = storage.Unmarshal[core.QAEntry](val)
		return err
	})
	return entry, err
}
