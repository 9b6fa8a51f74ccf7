package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and wallet adapters return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store or basket
// - ErrConflict: a conditional insert lost to an earlier writer
// - ErrAlreadyUsed: nonce or token already consumed
// - ErrUnavailable: wallet, ledger, or broker temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrAlreadyUsed = errors.New("already used")
	ErrUnavailable = errors.New("unavailable")
)
