package drive

import "fmt"

// WriteError reports a failed pulse width write on a single channel.
// Movement carries on with the remaining channels; the error exists for
// status reporting.
type WriteError struct {
	Channel Channel
	Cause   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("pulse write failed on %s: %v", e.Channel, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}
