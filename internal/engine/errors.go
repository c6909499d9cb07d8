package engine

import "fmt"

// MissingTargetError is returned when the image to patch does not exist.
type MissingTargetError struct {
	Path string
}

func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("target not found: %s", e.Path)
}

// IOError wraps a fatal read, backup or write failure.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
