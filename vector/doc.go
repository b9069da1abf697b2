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

// Package vector defines the similarity-search contract used by the RAG engine.
//
// A Store manages named collections of fixed-dimension points. Each point
// carries a payload map whose fields may be declared as indexes and used as
// exact-match filters. Results are ranked by cosine similarity.
//
// Two implementations ship with minutes:
//
//   - vector/qdrant talks to a Qdrant server over gRPC
//   - storage/badger keeps points next to the transcript data and scans them
//
// Every search over meeting data must carry a meeting id filter; see
// MeetingFilter.
package vector
