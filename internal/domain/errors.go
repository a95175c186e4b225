package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Ledger read/write errors propagate to callers;
// metadata and persistence errors are handled at the call site.
var (
	// ErrLedgerUnavailable is returned when a graph read fails at the network/RPC level.
	ErrLedgerUnavailable = errors.New("ledger unavailable")

	// ErrMutationRejected is returned when the signer or the ledger declines a write.
	// Not retried automatically.
	ErrMutationRejected = errors.New("mutation rejected")

	// ErrMutationFailed is returned when a write fails in flight (network, timeout).
	ErrMutationFailed = errors.New("mutation failed")

	// ErrAggregationFailed is returned when either the follower or following fetch fails.
	ErrAggregationFailed = errors.New("aggregation failed")

	// ErrMetadataUnavailable is returned by profile resolvers. Non-fatal.
	ErrMetadataUnavailable = errors.New("metadata unavailable")

	// ErrPersistenceFailed is returned by history writes and reads. Non-fatal.
	ErrPersistenceFailed = errors.New("persistence failed")

	// ErrInvalidAccount is returned for malformed account identifiers.
	ErrInvalidAccount = errors.New("invalid account")
)

// OpError attaches the failing operation and account to an error kind.
// errors.Is matches both Kind and the underlying cause.
type OpError struct {
	Op      string
	Account AccountID
	Kind    error
	Err     error
}

func (e *OpError) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Account, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewOpError builds an OpError. A nil err yields nil.
func NewOpError(op string, account AccountID, kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Account: account, Kind: kind, Err: err}
}

// IsRetryable reports whether the user should be offered a retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable) ||
		errors.Is(err, ErrAggregationFailed) ||
		errors.Is(err, ErrMutationFailed)
}
