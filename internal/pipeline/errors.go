package pipeline

import (
	"errors"
	"fmt"
)

// CapabilityError is a failure of a remote capability (transcription or text generation):
// network, auth, quota. It is never repaired, it fails the stage.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// ParseError means a generator response was not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaValidationError means parsed JSON does not conform to the expected shape.
// Index is the offending array element, or -1 for the top-level value.
type SchemaValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *SchemaValidationError) Error() string {
	switch {
	case e.Index >= 0 && e.Field != "":
		return fmt.Sprintf("schema validation: item %d: %s: %s", e.Index, e.Field, e.Reason)
	case e.Index >= 0:
		return fmt.Sprintf("schema validation: item %d: %s", e.Index, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("schema validation: %s: %s", e.Field, e.Reason)
	}
	return "schema validation: " + e.Reason
}

// ExtractionExhaustedError is returned when the repair loop used every attempt without
// obtaining a valid value. Last is the final parse or validation error.
type ExtractionExhaustedError struct {
	Stage    string
	Attempts int
	Last     error
}

func (e *ExtractionExhaustedError) Error() string {
	return fmt.Sprintf("no valid output after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExtractionExhaustedError) Unwrap() error { return e.Last }

// capabilityErr wraps err as a CapabilityError unless it already is one.
func capabilityErr(capability string, err error) error {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return err
	}
	return &CapabilityError{Capability: capability, Err: err}
}

// repairable reports whether err can be fixed by re-prompting the generator.
func repairable(err error) bool {
	var pe *ParseError
	var se *SchemaValidationError
	return errors.As(err, &pe) || errors.As(err, &se)
}
