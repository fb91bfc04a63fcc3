package tensor

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowFull is returned when the active half cannot take more data
	ErrWindowFull = errors.New("tensor: window full")

	// ErrNotReady is returned by Drain before the active half is complete
	ErrNotReady = errors.New("tensor: window not ready")
)

// ValidationError reports an item whose shape does not match the window geometry.
// The item is discarded; accumulation continues.
type ValidationError struct {
	Media string
	Want  string
	Got   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tensor: invalid %s: want %s, got %s", e.Media, e.Want, e.Got)
}
