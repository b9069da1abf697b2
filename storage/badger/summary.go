package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// SummaryRepository implements storage.SummaryRepository for BadgerDB.
type SummaryRepository struct {
	backend *Backend
}

var _ storage.SummaryRepository = (*SummaryRepository)(nil)

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(backend *Backend) *SummaryRepository {
	return &SummaryRepository{backend: backend}
}

// SaveSummary replaces the meeting's rolling summary.
func (r *SummaryRepository) SaveSummary(ctx context.Context, summary *core.Summary) error {
	if summary == nil || summary.MeetingID == "" {
		return core.ErrEmptyMeetingID
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		summary.UpdatedAt = time.Now().UTC()
		value, err := storage.Marshal(summary)
		if err != nil {
			return err
		}
		if err := tx.Set(makeSummaryKey(summary.MeetingID), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetSummary returns the meeting's summary or storage.ErrNotFound.
func (r *SummaryRepository) GetSummary(ctx context.Context, meetingID string) (*core.Summary, error) {
	var summary *core.Summary
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeSummaryKey(meetingID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			summary, err = storage.Unmarshal[core.Summary](val)
			return err
		})
	}, false)
	return summary, err
}
