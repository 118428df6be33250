package service

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidEncoding = errors.New("text is not valid UTF-8")
)

// ImportError reports a rejected bulk import. The document is left unmodified.
type ImportError struct {
	DocumentKey string
	Offset      int
	Err         error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import into %q failed at byte %d: %v", e.DocumentKey, e.Offset, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}
