package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// TranscriptRepository implements storage.TranscriptRepository for BadgerDB.
// Entries are keyed by meeting and start offset so range queries are seeks.
type TranscriptRepository struct {
	backend *Backend
}

var _ storage.TranscriptRepository = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(backend *Backend) *TranscriptRepository {
	return &TranscriptRepository{backend: backend}
}

// SaveTranscriptEntry persists an entry, overwriting any entry with the same id.
func (r *TranscriptRepository) SaveTranscriptEntry(ctx context.Context, entry *core.TranscriptEntry) error {
	if entry == nil || entry.MeetingID == "" {
		return core.ErrEmptyMeetingID
	}
	if entry.StartOffset < 0 {
		return core.ErrNegativeOffset
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		value, err := storage.Marshal(entry)
		if err != nil {
			return err
		}
		if err := tx.Set(makeTranscriptKey(entry.MeetingID, entry.StartOffset, entry.Id), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetTranscriptEntries returns all entries for a meeting in chronological order.
func (r *TranscriptRepository) GetTranscriptEntries(ctx context.Context, meetingID string) ([]*core.TranscriptEntry, error) {
	var results []*core.TranscriptEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, scopedPrefix(transcriptPrefix, meetingID), false, func(_, val []byte) (bool, error) {
			entry, err := storage.Unmarshal[core.TranscriptEntry](val)
			if err != nil {
				return false, err
			}
			results = append(results, entry)
			return true, nil
		})
	}, false)
	return results, err
}

// GetTranscriptEntriesByRange returns entries with start <= StartOffset < end.
func (r *TranscriptRepository) GetTranscriptEntriesByRange(ctx context.Context, meetingID string, start, end int64) ([]*core.TranscriptEntry, error) {
	if start < 0 || end < start {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.TranscriptEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := scopedPrefix(transcriptPrefix, meetingID)
		endKey := makePartialTranscriptKey(meetingID, end)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makePartialTranscriptKey(meetingID, start)); iter.ValidForPrefix(prefix); iter.Next() {
			if bytes.Compare(iter.Item().Key(), endKey) >= 0 {
				break
			}
			var entry *core.TranscriptEntry
			if err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.Unmarshal[core.TranscriptEntry](val)
				return err
			}); err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	}, false)

	return results, err
}

// GetRecentTranscriptEntries returns up to limit entries, newest first.
func (r *TranscriptRepository) GetRecentTranscriptEntries(ctx context.Context, meetingID string, limit int) ([]*core.TranscriptEntry, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.TranscriptEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, scopedPrefix(transcriptPrefix, meetingID), true, func(_, val []byte) (bool, error) {
			entry, err := storage.Unmarshal[core.TranscriptEntry](val)
			if err != nil {
				return false, err
			}
			results = append(results, entry)
			return len(results) < limit, nil
		})
	}, false)
	return results, err
}

// CountTranscriptEntries returns the number of entries for a meeting.
func (r *TranscriptRepository) CountTranscriptEntries(ctx context.Context, meetingID string) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = scopedPrefix(transcriptPrefix, meetingID)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// DeleteTranscriptEntries removes every entry for a meeting.
func (r *TranscriptRepository) DeleteTranscriptEntries(ctx context.Context, meetingID string) error {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = scopedPrefix(transcriptPrefix, meetingID)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	return r.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}
