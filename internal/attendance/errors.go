package attendance

import (
	"errors"

	"github.com/kozaktomas/facegate/internal/facematch"
)

// Matcher errors are re-exported so callers only need this package for errors.Is checks.
var (
	ErrInvalidEncoding  = facematch.ErrInvalidEncoding
	ErrInvalidTolerance = facematch.ErrInvalidTolerance
	ErrNoMatch          = facematch.ErrNoMatch
	ErrAmbiguousMatch   = facematch.ErrAmbiguousMatch
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrDuplicate          = errors.New("duplicate attendance")
	ErrInvalidRequirement = errors.New("invalid clearance requirement")
	ErrSiteNotFound       = errors.New("site not found")
	ErrPersonNotFound     = errors.New("person not found")
	ErrQualityRejected    = errors.New("face quality rejected")
	ErrInvalidPolicy      = errors.New("invalid policy")
)
