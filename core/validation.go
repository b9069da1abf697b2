// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"
)

// ValidateFragment validates a Fragment according to domain rules.
//
// Validation rules:
//   - SpeakerID must not be empty
//   - Text must contain something other than whitespace
//   - StartOffset and Duration must not be negative
//
// NOT validated:
//   - WordCount (providers disagree on how to count)
//   - SpeakerName (may be blank for unidentified speakers)
func ValidateFragment(f *Fragment) error {
	if f == nil {
		return fmt.Errorf("%w: fragment is nil", ErrInvalidFragment)
	}

	if f.SpeakerID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFragment, ErrEmptySpeakerID)
	}

	if strings.TrimSpace(f.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFragment, ErrEmptyContent)
	}

	if f.StartOffset < 0 || f.Duration < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFragment, ErrNegativeOffset)
	}

	return nil
}

// ValidateMeeting validates a Meeting record.
func ValidateMeeting(m *Meeting) error {
	if m == nil {
		return fmt.Errorf("%w: meeting is nil", ErrInvalidMeeting)
	}

	if m.Id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMeeting, ErrEmptyMeetingID)
	}

	if err := ValidateMeetingStatus(m.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMeeting, err)
	}

	return nil
}

// ValidateMeetingStatus checks that a status is one of the known lifecycle states.
func ValidateMeetingStatus(status MeetingStatus) error {
	switch status {
	case MeetingScheduled, MeetingLive, MeetingPast, MeetingCancelled, MeetingNoShow:
		return nil
	}
	return fmt.Errorf("%w: meeting status %q", ErrInvalidStatus, status)
}

// ValidateQAEntry validates a QAEntry before it is persisted.
func ValidateQAEntry(e *QAEntry) error {
	if e == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidQAEntry)
	}

	if e.MeetingID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQAEntry, ErrEmptyMeetingID)
	}

	if strings.TrimSpace(e.Question) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQAEntry, ErrEmptyContent)
	}

	switch e.Status {
	case QAStatusAsking, QAStatusAnswered, QAStatusError:
	default:
		return fmt.Errorf("%w: %w: qa status %q", ErrInvalidQAEntry, ErrInvalidStatus, e.Status)
	}

	return nil
}
