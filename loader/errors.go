package loader

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by imports on a closed Context.
var ErrClosed = errors.New("loader: context closed")

// ImportError reports a failed import. Stack is the import stack at the
// moment of failure, outermost file first.
type ImportError struct {
	Name  string
	Path  string
	Stack []string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("importing %s: %v", e.Name, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }
