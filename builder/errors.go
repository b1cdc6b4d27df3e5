package builder

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// The builder's failure modes, so callers can tell apart what they can
// fix (their input, their destination), what they can retry (staging
// allocation), and what they cannot (a failed fixity validation, which
// indicates a bug or a filesystem race). Plain I/O errors are returned
// wrapped with the offending path and are not given their own type.

// InvalidStructureError means the source directory is not a valid
// intellectual entity: its shape is wrong, not its contents.
type InvalidStructureError struct {
	Reason string
	Paths  []string // offending entries, if any
}

func (e *InvalidStructureError) Error() string {
	if len(e.Paths) == 0 {
		return "invalid source structure: " + e.Reason
	}
	return fmt.Sprintf("invalid source structure: %s: %s",
		e.Reason, strings.Join(e.Paths, ", "))
}

// DestinationExistsError means the requested destination already exists
// and overwriting was not allowed.
type DestinationExistsError struct {
	Path string
}

func (e *DestinationExistsError) Error() string {
	return "destination already exists: " + e.Path
}

// StagingAllocationError means no collision-free staging directory could
// be allocated. Retryable with a different parent path.
type StagingAllocationError struct {
	Parent   string
	Attempts int
}

func (e *StagingAllocationError) Error() string {
	return fmt.Sprintf("unable to allocate staging directory in %s after %d attempts",
		e.Parent, e.Attempts)
}

// ValidationError means a full fixity validation failed. Phase is
// "initial" (before the atomic handoff; nothing was placed at the
// destination) or "final" (after the handoff; the invalid bag is left at
// the destination for inspection).
type ValidationError struct {
	Phase string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s bag validation failed: %s", e.Phase, e.Err)
}

// IsValidationError reports whether err is a fixity validation failure.
func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}
