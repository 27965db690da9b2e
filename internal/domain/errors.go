package domain

import "errors"

// Sentinel errors for the four failure classes the pipeline and serving
// layer distinguish. Wrap with fmt.Errorf("...: %w", err) and test with
// errors.Is.
var (
	// ErrDataQuality marks rows or schemes excluded during ingest or
	// feature building. Exclusions are recorded in the build report,
	// never silently zero-filled.
	ErrDataQuality = errors.New("data quality")

	// ErrInvalidRequest marks a structurally invalid or unparseable
	// recommendation request. Returned to the caller, never fatal.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyResult marks a valid request for which no fund matches
	// even after fallback filtering.
	ErrEmptyResult = errors.New("no matching funds")

	// ErrModelStaleness marks a classifier artifact whose content hash
	// does not match the persisted normalization parameters. Loading a
	// stale model is fatal; the pipeline must be rebuilt.
	ErrModelStaleness = errors.New("model staleness")
)

// IsRequestError reports whether err is a per-request outcome that maps
// to a 4xx response rather than a server failure.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrEmptyResult)
}
