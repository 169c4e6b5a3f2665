package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
//   - ErrNotFound: the record does not exist in the store
//   - ErrAlreadyUsed: a unique key (identity number, zone id) is taken
//   - ErrUnavailable: the backing store could not be reached or failed mid-write
//
// Validation failures are not sentinels; use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
