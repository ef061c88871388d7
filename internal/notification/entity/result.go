package entity

import "fmt"

// Result describes the primary channel outcome of a dispatch.
type Result struct {
	Channel  Channel
	Skipped  bool
	Reason   string
	Receipt  string
	Attempts int
}

// DispatchError is returned when every primary channel attempt failed.
type DispatchError struct {
	Channel  Channel
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("notification: %s delivery failed after %d attempt(s): %v", e.Channel, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
