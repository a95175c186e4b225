// Package mutation applies follow and unfollow requests, batching when it can
// and degrading to sequential single writes when a batch fails in flight.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/idhash"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/observability"
)

// Writer is the write side of the ledger relationship client.
type Writer interface {
	Follow(ctx context.Context, target domain.AccountID) (domain.TxHandle, error)
	Unfollow(ctx context.Context, target domain.AccountID) (domain.TxHandle, error)
	FollowBatch(ctx context.Context, targets []domain.AccountID) (*ledger.BatchSubmission, error)
	UnfollowBatch(ctx context.Context, targets []domain.AccountID) (*ledger.BatchSubmission, error)
	IsFollowing(ctx context.Context, from, to domain.AccountID) (bool, error)
}

// Refresher re-aggregates the owner after a mutation so history and caches
// reflect the new state.
type Refresher interface {
	ComputeRelationships(ctx context.Context, account domain.AccountID) (*domain.RelationshipSnapshot, error)
}

// Orchestrator applies mutations for one owner account.
type Orchestrator struct {
	owner        domain.AccountID
	writer       Writer
	refresher    Refresher
	verifyBefore bool
	logger       *zap.Logger
}

// Options for creating Orchestrator.
type Options struct {
	Owner  domain.AccountID // the signing account
	Writer Writer
	// Refresher, when set, runs after any successful item.
	Refresher Refresher
	// VerifyBeforeMutate checks the current edge per account and skips those
	// already in the desired state.
	VerifyBeforeMutate bool
	Logger             *zap.Logger
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	owner, err := domain.NormalizeAccount(string(opts.Owner))
	if err != nil {
		return nil, fmt.Errorf("orchestrator owner: %w", err)
	}
	if opts.Writer == nil {
		return nil, errors.New("orchestrator requires a writer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		owner:        owner,
		writer:       opts.Writer,
		refresher:    opts.Refresher,
		verifyBefore: opts.VerifyBeforeMutate,
		logger:       logger,
	}, nil
}

// Owner returns the account whose edges are mutated.
func (o *Orchestrator) Owner() domain.AccountID {
	return o.owner
}

// Apply follows or unfollows accounts and reports the per-account outcome.
// The returned error covers request-level problems only; per-account failures
// are in the report.
func (o *Orchestrator) Apply(ctx context.Context, accounts []domain.AccountID, mode domain.MutationMode) (*domain.MutationReport, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mutation mode %q", mode)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("apply %s: %w: no accounts", mode, domain.ErrInvalidAccount)
	}

	rep := newReport(mode)
	pending := o.prepare(ctx, accounts, mode, rep)

	keys := make([]string, len(pending))
	for i, a := range pending {
		keys[i] = string(a)
	}
	rep.MutationID = idhash.ComputeRequestID(string(o.owner), string(mode), keys)

	log := o.logger.With(
		zap.String("mutation_id", rep.MutationID),
		zap.String("mode", string(mode)),
		zap.String("owner", string(o.owner)))

	switch len(pending) {
	case 0:
	case 1:
		handle, err := o.single(ctx, mode, pending[0])
		o.record(rep, pending[0], handle, err)
	default:
		o.batch(ctx, mode, pending, rep, log)
	}

	rep.finish()
	observability.RecordMutation(string(mode), rep.statusCounts(), rep.UsedFallback)
	log.Info("mutation applied",
		zap.String("summary", rep.Summary()),
		zap.Bool("fallback", rep.UsedFallback))

	if o.refresher != nil && len(rep.ByStatus(domain.ItemSucceeded)) > 0 {
		if _, err := o.refresher.ComputeRelationships(ctx, o.owner); err != nil {
			log.Warn("post-mutation refresh failed", zap.Error(err))
		}
	}
	return rep.MutationReport, nil
}

// prepare normalizes, dedupes and optionally verifies accounts. Invalid and
// already-satisfied accounts are recorded; the rest are returned in order.
func (o *Orchestrator) prepare(ctx context.Context, accounts []domain.AccountID, mode domain.MutationMode, rep *report) []domain.AccountID {
	seen := domain.NewAccountSet()
	var pending []domain.AccountID

	for _, raw := range accounts {
		acct, err := domain.NormalizeAccount(string(raw))
		if err != nil {
			rep.add(domain.ItemResult{Account: raw, Status: domain.ItemFailed, Err: err})
			continue
		}
		if !seen.Add(acct) {
			continue
		}
		if acct.Equal(o.owner) {
			rep.add(domain.ItemResult{Account: acct, Status: domain.ItemFailed,
				Err: fmt.Errorf("%w: cannot %s self", domain.ErrInvalidAccount, mode)})
			continue
		}
		if o.verifyBefore && o.alreadyApplied(ctx, acct, mode) {
			rep.add(domain.ItemResult{Account: acct, Status: domain.ItemSkipped})
			continue
		}
		rep.add(domain.ItemResult{Account: acct, Status: domain.ItemFailed})
		pending = append(pending, acct)
	}
	return pending
}

func (o *Orchestrator) alreadyApplied(ctx context.Context, target domain.AccountID, mode domain.MutationMode) bool {
	following, err := o.writer.IsFollowing(ctx, o.owner, target)
	if err != nil {
		o.logger.Warn("pre-mutation check failed, submitting anyway",
			zap.String("target", string(target)),
			zap.Error(err))
		return false
	}
	return following == (mode == domain.ModeFollow)
}

func (o *Orchestrator) single(ctx context.Context, mode domain.MutationMode, target domain.AccountID) (domain.TxHandle, error) {
	if mode == domain.ModeFollow {
		return o.writer.Follow(ctx, target)
	}
	return o.writer.Unfollow(ctx, target)
}

func (o *Orchestrator) batch(ctx context.Context, mode domain.MutationMode, pending []domain.AccountID, rep *report, log *zap.Logger) {
	var (
		sub *ledger.BatchSubmission
		err error
	)
	if mode == domain.ModeFollow {
		sub, err = o.writer.FollowBatch(ctx, pending)
	} else {
		sub, err = o.writer.UnfollowBatch(ctx, pending)
	}

	submitted, excluded := ledger.TruncateBatch(pending)
	if sub != nil {
		submitted, excluded = sub.Submitted, sub.Excluded
	}
	for _, a := range excluded {
		rep.setStatus(a, domain.ItemNotProcessed, "", nil)
	}

	if err == nil {
		rep.BatchHandle = sub.Handle
		for _, a := range submitted {
			rep.set(a, sub.Handle, nil)
		}
		return
	}

	if !errors.Is(err, domain.ErrMutationFailed) {
		log.Warn("batch mutation rejected", zap.Error(err))
		for _, a := range submitted {
			rep.set(a, "", err)
		}
		return
	}

	log.Warn("batch mutation failed, falling back to single writes",
		zap.Int("count", len(submitted)),
		zap.Error(err))
	rep.UsedFallback = true
	for _, a := range submitted {
		if ctxErr := ctx.Err(); ctxErr != nil {
			rep.set(a, "", domain.NewOpError(string(mode), a, domain.ErrMutationFailed, ctxErr))
			continue
		}
		handle, err := o.single(ctx, mode, a)
		if err != nil && !ledger.IsAlreadyApplied(err) {
			log.Warn("single mutation failed", zap.String("target", string(a)), zap.Error(err))
		}
		o.record(rep, a, handle, err)
	}
}

// record stores a single-write outcome. A ledger refusal because the edge is
// already in place means the account needs nothing, so it is skipped.
func (o *Orchestrator) record(rep *report, target domain.AccountID, handle domain.TxHandle, err error) {
	if ledger.IsAlreadyApplied(err) {
		rep.setStatus(target, domain.ItemSkipped, "", nil)
		return
	}
	rep.set(target, handle, err)
}
