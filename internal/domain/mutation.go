package domain

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// MaxBatchSize is the ledger-imposed cap on targets per batch mutation.
const MaxBatchSize = 50

// MutationMode selects follow or unfollow.
type MutationMode string

const (
	ModeFollow   MutationMode = "follow"
	ModeUnfollow MutationMode = "unfollow"
)

// Valid reports whether m is a known mode.
func (m MutationMode) Valid() bool {
	return m == ModeFollow || m == ModeUnfollow
}

// TxHandle identifies a submitted ledger transaction.
type TxHandle string

// ItemStatus is the outcome for one account in a mutation request.
type ItemStatus string

const (
	ItemSucceeded    ItemStatus = "SUCCEEDED"
	ItemFailed       ItemStatus = "FAILED"
	ItemSkipped      ItemStatus = "SKIPPED"       // already in the desired state
	ItemNotProcessed ItemStatus = "NOT_PROCESSED" // beyond the batch cap
)

// ItemResult is the per-account outcome.
type ItemResult struct {
	Account  AccountID
	Status   ItemStatus
	TxHandle TxHandle
	Err      error
}

// MutationReport summarizes a follow/unfollow request.
type MutationReport struct {
	MutationID   string
	Mode         MutationMode
	Requested    int
	Succeeded    int
	Results      []ItemResult
	BatchHandle  TxHandle
	UsedFallback bool
}

// Summary renders "X of Y succeeded".
func (r *MutationReport) Summary() string {
	return fmt.Sprintf("%d of %d succeeded", r.Succeeded, r.Requested)
}

// Complete reports whether every requested account succeeded or was already in state.
func (r *MutationReport) Complete() bool {
	for _, res := range r.Results {
		if res.Status == ItemFailed || res.Status == ItemNotProcessed {
			return false
		}
	}
	return true
}

// ByStatus returns the accounts with the given status, in request order.
func (r *MutationReport) ByStatus(status ItemStatus) []AccountID {
	var out []AccountID
	for _, res := range r.Results {
		if res.Status == status {
			out = append(out, res.Account)
		}
	}
	return out
}

// Err aggregates per-item failures. Nil when nothing failed.
func (r *MutationReport) Err() error {
	var result *multierror.Error
	for _, res := range r.Results {
		if res.Status == ItemFailed && res.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", res.Account, res.Err))
		}
	}
	return result.ErrorOrNil()
}
