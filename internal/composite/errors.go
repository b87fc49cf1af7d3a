package composite

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Sentinel errors returned by Compose.
var (
	// ErrDimensionMismatch: a raster or mask does not match the base grid.
	ErrDimensionMismatch = eris.New("dimension mismatch")
	// ErrCandidateUnavailable: the fetcher could not deliver a candidate.
	ErrCandidateUnavailable = eris.New("candidate unavailable")
	// ErrNoCandidates is a soft error: the result is still valid and equals
	// the base.
	ErrNoCandidates = eris.New("no gap-filling candidates")
)

// IsSoft reports whether err leaves the accompanying Result usable.
func IsSoft(err error) bool {
	return errors.Is(err, ErrNoCandidates)
}

// UnavailableError reports a candidate the fetcher could not deliver. It
// matches ErrCandidateUnavailable and unwraps to the fetcher's error.
type UnavailableError struct {
	Ref CandidateRef
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCandidateUnavailable.Error(), e.Ref.ID, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCandidateUnavailable) hold.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrCandidateUnavailable
}
