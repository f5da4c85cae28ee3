package chat

import "fmt"

// ValidationError rejects a request before any write happens; no partial
// writes ever occur.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
