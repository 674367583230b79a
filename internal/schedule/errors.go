package schedule

import "errors"

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when no record with the id is owned by the caller.
	ErrNotFound = errors.New("schedule not found")

	// ErrImportStructure matches every *ImportError.
	ErrImportStructure = errors.New("invalid import document")
)

// ValidationError reports rejected input. No state is mutated when it is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(reason string) error { return &ValidationError{Reason: reason} }

// ImportError aborts a whole import before any record is inserted.
type ImportError struct {
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *ImportError) Unwrap() error { return e.Err }

func (e *ImportError) Is(target error) bool { return target == ErrImportStructure }
