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

// Package storage provides the persistence contracts for minutes.
//
// The pipeline only needs "save row" and "find rows" operations on a handful
// of record types. This package defines those as repository interfaces so the
// buffering, job and RAG layers never touch a concrete database.
//
// # Architecture
//
//   - MeetingRepository: meeting records and their lifecycle status
//   - TranscriptRepository: flushed transcript entries, queryable by meeting and time range
//   - QARepository: question/answer history, newest first
//   - SummaryRepository: one rolling summary per meeting
//
// The BadgerDB implementation lives in storage/badger:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	transcripts := badger.NewTranscriptRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
