package refresh

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes fatal refresh failures.
type ErrorCode string

const (
	// ErrCodeSourceUnavailable indicates an input file is missing or
	// unreadable. The cycle aborts; no partial snapshot is published.
	ErrCodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"

	// ErrCodeSchema indicates an expected column (or column-name pattern)
	// could not be located. Downstream joins cannot proceed safely.
	ErrCodeSchema ErrorCode = "SCHEMA_ERROR"
)

// RefreshError is a fatal failure of one refresh cycle. Non-fatal
// conditions (unresolved keys, guarded divisions) never produce one; they
// accumulate in the QualityReport instead.
type RefreshError struct {
	Code   ErrorCode
	Source string // logical source name, e.g. "grants"
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: source %s: %v", e.Code, e.Source, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsSourceUnavailable reports whether err is a missing/unreadable-source
// failure. Uses errors.As to handle wrapping.
func IsSourceUnavailable(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Code == ErrCodeSourceUnavailable
}

// IsSchemaError reports whether err is a column-location failure.
func IsSchemaError(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Code == ErrCodeSchema
}
