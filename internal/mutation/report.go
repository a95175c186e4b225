package mutation

import "social-graph-lab/internal/domain"

// report wraps MutationReport with an index for in-place updates.
type report struct {
	*domain.MutationReport
	index map[string]int
}

func newReport(mode domain.MutationMode) *report {
	return &report{
		MutationReport: &domain.MutationReport{Mode: mode},
		index:          make(map[string]int),
	}
}

func (r *report) add(res domain.ItemResult) {
	r.index[res.Account.Key()] = len(r.Results)
	r.Results = append(r.Results, res)
}

func (r *report) set(account domain.AccountID, handle domain.TxHandle, err error) {
	if err != nil {
		r.setStatus(account, domain.ItemFailed, "", err)
		return
	}
	r.setStatus(account, domain.ItemSucceeded, handle, nil)
}

func (r *report) setStatus(account domain.AccountID, status domain.ItemStatus, handle domain.TxHandle, err error) {
	i, ok := r.index[account.Key()]
	if !ok {
		return
	}
	r.Results[i].Status = status
	r.Results[i].TxHandle = handle
	r.Results[i].Err = err
}

// finish computes Requested and Succeeded. Skipped accounts already hold the
// desired edge and count as succeeded.
func (r *report) finish() {
	r.Requested = len(r.Results)
	r.Succeeded = 0
	for _, res := range r.Results {
		if res.Status == domain.ItemSucceeded || res.Status == domain.ItemSkipped {
			r.Succeeded++
		}
	}
}

func (r *report) statusCounts() map[string]int {
	counts := make(map[string]int)
	for _, res := range r.Results {
		counts[string(res.Status)]++
	}
	return counts
}
