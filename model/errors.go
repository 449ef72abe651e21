package model

import (
	"fmt"
	"strings"
)

// SchemaError reports an invalid or incomplete API definition. It is
// returned before any model or embedding call is made.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("invalid API definition: %s %s", e.Field, e.Reason)
}

// GenerationError reports that the model failed to produce a valid test
// case within the retry budget. LastResponse holds the raw text of the
// final attempt for diagnostics.
type GenerationError struct {
	TestType     TestType
	Attempts     int
	Errs         []string
	LastResponse string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate valid %s test case after %d attempts: %s",
		e.TestType, e.Attempts, strings.Join(e.Errs, "; "))
}

// ProviderError wraps a transport or provider failure so callers can
// distinguish it from validation problems.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error during %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
