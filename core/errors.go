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

import "errors"

// Domain validation errors
var (
	// ErrInvalidFragment indicates a Fragment failed validation.
	ErrInvalidFragment = errors.New("invalid fragment")

	// ErrInvalidMeeting indicates a Meeting failed validation.
	ErrInvalidMeeting = errors.New("invalid meeting")

	// ErrInvalidQAEntry indicates a QAEntry failed validation.
	ErrInvalidQAEntry = errors.New("invalid qa entry")

	// ErrEmptyMeetingID indicates a meeting id was not supplied.
	ErrEmptyMeetingID = errors.New("meeting id cannot be empty")

	// ErrEmptySpeakerID indicates the fragment has no speaker id.
	ErrEmptySpeakerID = errors.New("speaker id cannot be empty")

	// ErrEmptyContent indicates a text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrNegativeOffset indicates a fragment start offset or duration below zero.
	ErrNegativeOffset = errors.New("offset cannot be negative")

	// ErrInvalidStatus indicates an unknown meeting or QA status value.
	ErrInvalidStatus = errors.New("invalid status")
)
