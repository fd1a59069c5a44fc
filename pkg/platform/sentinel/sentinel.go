package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: snapshot, protocol or record does not exist in a store
// - ErrStale: a stored snapshot was built by an incompatible version
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, malformed records), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrStale       = errors.New("stale snapshot")
	ErrUnavailable = errors.New("unavailable")
)
