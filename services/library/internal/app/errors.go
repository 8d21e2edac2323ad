package app

import "errors"

var (
	ErrBookNotFound = errors.New("book not found")
	// ErrNoFile means the book has no file of the requested kind.
	ErrNoFile        = errors.New("book has no associated file")
	ErrFileNotFound  = errors.New("file not found")
	ErrInvalidKind   = errors.New("invalid file type")
	ErrNoObjectStore = errors.New("object storage not configured")
)

// ValidationError is a client input problem. Message is shown verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}
