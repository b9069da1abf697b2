package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/minutes/core"
	"github.com/poiesic/minutes/storage"
)

// MeetingRepository implements storage.MeetingRepository for BadgerDB.
type MeetingRepository struct {
	backend *Backend
}

var _ storage.MeetingRepository = (*MeetingRepository)(nil)

// NewMeetingRepository creates a new MeetingRepository.
func NewMeetingRepository(backend *Backend) *MeetingRepository {
	return &MeetingRepository{backend: backend}
}

// SaveMeeting inserts or replaces a meeting.
func (r *MeetingRepository) SaveMeeting(ctx context.Context, meeting *core.Meeting) error {
	if err := core.ValidateMeeting(meeting); err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		if meeting.CreatedAt.IsZero() {
			meeting.CreatedAt = now
		}
		meeting.UpdatedAt = now

		value, err := storage.Marshal(meeting)
		if err != nil {
			return err
		}
		if err := tx.Set(makeMeetingKey(meeting.Id), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetMeeting retrieves a meeting by id.
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (*core.Meeting, error) {
	var meeting *core.Meeting
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeMeetingKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			meeting, err = storage.Unmarshal[core.Meeting](val)
			return err
		})
	}, false)
	return meeting, err
}

// ListMeetings returns every meeting ordered by id.
func (r *MeetingRepository) ListMeetings(ctx context.Context) ([]*core.Meeting, error) {
	var meetings []*core.Meeting
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(meetingPrefix), false, func(_, val []byte) (bool, error) {
			m, err := storage.Unmarshal[core.Meeting](val)
			if err != nil {
				return false, err
			}
			meetings = append(meetings, m)
			return true, nil
		})
	}, false)
	return meetings, err
}
