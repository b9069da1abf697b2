package rag

import "errors"

var (
	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrAnswerModelRequired is returned when an answer model is not provided.
	ErrAnswerModelRequired = errors.New("answer model required")

	// ErrPromptsRequired is returned when the prompt template cache is not provided.
	ErrPromptsRequired = errors.New("prompt templates required")

	// ErrQARepositoryRequired is returned when a QA repository is not provided.
	ErrQARepositoryRequired = errors.New("QA repository required")

	// ErrTranscriptRepositoryRequired is returned when a transcript repository is not provided.
	ErrTranscriptRepositoryRequired = errors.New("transcript repository required")

	// ErrSummaryRepositoryRequired is returned when a summary repository is not provided.
	ErrSummaryRepositoryRequired = errors.New("summary repository required")

	// ErrEmptyQuestion is returned when a question is blank.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrNoTranscript is returned when a summary is requested before anything was flushed.
	ErrNoTranscript = errors.New("meeting has no transcript yet")
)
