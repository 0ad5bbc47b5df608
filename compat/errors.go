package compat

import "fmt"

// InvalidInputError reports input the engine refuses to score.
// Callers are expected to validate at the boundary and map it to a client error.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
