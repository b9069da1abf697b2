package embedding

import "errors"

var (
	// ErrEmbedderRequired is returned when no backend embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrServiceClosed is returned after Close.
	ErrServiceClosed = errors.New("embedding service closed")

	// ErrResultMismatch is returned when the backend returns a different
	// number of vectors than texts submitted.
	ErrResultMismatch = errors.New("embedding result mismatch")
)
