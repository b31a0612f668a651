package pipeline

import (
	"errors"
	"fmt"
)

// ErrNoAnswer is returned when the initial answer could not be generated
var ErrNoAnswer = errors.New("initial answer generation failed")

// StageError records the stage that aborted a run
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// panicError wraps a value recovered from a panicking stage
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
