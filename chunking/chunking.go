// Package chunking groups raw speech fragments into speaker-coherent,
// time-bounded chunks for embedding.
package chunking

import (
	"strings"

	"github.com/poiesic/minutes/core"
)

// DefaultWindow is the merge window in milliseconds.
const DefaultWindow int64 = 60_000

// Chunk groups fragments using DefaultWindow.
func Chunk(fragments []core.Fragment) []core.Chunk {
	return ChunkWithWindow(fragments, DefaultWindow)
}

// ChunkWithWindow merges a fragment into the current chunk only when it has
// the same speaker and arrived less than window ms after the chunk's latest
// timestamp. Anything else closes the chunk and starts a new one.
func ChunkWithWindow(fragments []core.Fragment, window int64) []core.Chunk {
	if len(fragments) == 0 {
		return []core.Chunk{}
	}

	chunks := make([]core.Chunk, 0, len(fragments))
	var texts []string
	current := startChunk(fragments[0])
	texts = append(texts, fragments[0].Text)

	for _, f := range fragments[1:] {
		if f.SpeakerID == current.SpeakerID && f.Timestamp()-current.Timestamp < window {
			texts = append(texts, f.Text)
			current.SegmentCount++
			// Keep the latest timestamp even if fragments arrive slightly out of order
			current.Timestamp = max(current.Timestamp, f.Timestamp())
			continue
		}
		current.Text = strings.Join(texts, " ")
		chunks = append(chunks, current)

		current = startChunk(f)
		texts = append(texts[:0], f.Text)
	}

	current.Text = strings.Join(texts, " ")
	return append(chunks, current)
}

func startChunk(f core.Fragment) core.Chunk {
	return core.Chunk{
		SpeakerID:    f.SpeakerID,
		SpeakerName:  f.SpeakerName,
		Timestamp:    f.Timestamp(),
		SegmentCount: 1,
	}
}
