package prompts

import "errors"

var (
	// ErrTemplateNotFound is returned when a required template is missing.
	ErrTemplateNotFound = errors.New("prompt template not found")

	// ErrEmptyTemplate is returned when a template file has no content.
	ErrEmptyTemplate = errors.New("prompt template is empty")
)
