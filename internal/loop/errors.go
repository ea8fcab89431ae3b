package loop

import "fmt"

// RunError wraps a failure inside the loop with the stage and iteration
// where it happened. The loop keeps the last-good artifact when one of
// these occurs.
type RunError struct {
	Stage     string
	Iteration int
	Cause     any
}

func (e *RunError) Error() string {
	return fmt.Sprintf("loop %s failed at iteration %d: %v", e.Stage, e.Iteration, e.Cause)
}

func (e *RunError) Unwrap() error {
	if err, ok := e.Cause.(error); ok {
		return err
	}
	return nil
}
