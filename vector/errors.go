package vector

import "errors"

var (
	// ErrCollectionNotFound indicates an operation on a collection that was never initialized.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDimensionMismatch indicates a vector whose length differs from the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidDimension indicates a collection dimension of zero or less.
	ErrInvalidDimension = errors.New("dimension must be greater than 0")

	// ErrEmptyCollectionName indicates a blank collection name.
	ErrEmptyCollectionName = errors.New("collection name cannot be empty")

	// ErrEmptyPointID indicates a point without an id.
	ErrEmptyPointID = errors.New("point id cannot be empty")
)
