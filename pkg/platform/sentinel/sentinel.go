package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and upstream clients return
// these (optionally wrapped) so services can translate them into coded domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: row or upstream resource does not exist
// - ErrConflict: a uniqueness or serialization conflict was detected
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: upstream collaborator failed or timed out
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
