package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"social-graph-lab/internal/domain"
)

// Pagination limits.
const (
	// MaxPageSize is the ledger-imposed maximum range per index read.
	MaxPageSize = 50
	// DefaultMaxPages bounds a single full-set walk.
	DefaultMaxPages = 10_000
)

// ErrPageLimit is wrapped when a full-set walk needs more than MaxPages pages.
var ErrPageLimit = errors.New("page limit exceeded")

// direction selects which side of the follow graph a range read targets.
type direction int

const (
	dirFollowers direction = iota
	dirFollowing
)

func (d direction) String() string {
	if d == dirFollowers {
		return "followers"
	}
	return "following"
}

// BatchSubmission is the result of a batch write.
// Excluded holds the targets beyond MaxBatchSize that were not submitted.
type BatchSubmission struct {
	Handle    domain.TxHandle
	Submitted []domain.AccountID
	Excluded  []domain.AccountID
}

// RelationshipClient exposes paginated reads and signed writes against the
// ledger's social-graph contract. Safe for concurrent use.
type RelationshipClient struct {
	service  Service
	signer   *Signer
	pageSize int
	maxPages int
	logger   *zap.Logger
}

// RelationshipOptions configures RelationshipClient.
type RelationshipOptions struct {
	Signer   *Signer // required for writes
	PageSize int     // clamped to [1, MaxPageSize]; 0 means MaxPageSize
	MaxPages int     // 0 means DefaultMaxPages
	Logger   *zap.Logger
}

// NewRelationshipClient creates a RelationshipClient over service.
func NewRelationshipClient(service Service, opts RelationshipOptions) *RelationshipClient {
	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelationshipClient{
		service:  service,
		signer:   opts.Signer,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Signer returns the configured signer, or nil for a read-only client.
func (c *RelationshipClient) Signer() *Signer {
	return c.signer
}

// FollowerCount returns the follower count of account.
// On failure the count is 0 and the error wraps ErrLedgerUnavailable.
func (c *RelationshipClient) FollowerCount(ctx context.Context, account domain.AccountID) (uint64, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return 0, err
	}
	n, err := c.service.FollowerCount(ctx, string(acct))
	if err != nil {
		return 0, domain.NewOpError("followerCount", acct, domain.ErrLedgerUnavailable, err)
	}
	return n, nil
}

// FollowingCount returns the following count of account.
// On failure the count is 0 and the error wraps ErrLedgerUnavailable.
func (c *RelationshipClient) FollowingCount(ctx context.Context, account domain.AccountID) (uint64, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return 0, err
	}
	n, err := c.service.FollowingCount(ctx, string(acct))
	if err != nil {
		return 0, domain.NewOpError("followingCount", acct, domain.ErrLedgerUnavailable, err)
	}
	return n, nil
}

// Counts fetches follower and following counts concurrently.
func (c *RelationshipClient) Counts(ctx context.Context, account domain.AccountID) (*domain.RelationshipCounts, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}

	counts := &domain.RelationshipCounts{Account: acct}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := c.FollowerCount(gctx, acct)
		counts.FollowerCount = n
		return err
	})
	g.Go(func() error {
		n, err := c.FollowingCount(gctx, acct)
		counts.FollowingCount = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// FollowersPage returns followers of account in [start, start+pageSize).
// A page shorter than pageSize means there are no more pages.
func (c *RelationshipClient) FollowersPage(ctx context.Context, account domain.AccountID, start uint64, pageSize int) ([]domain.AccountID, error) {
	return c.page(ctx, dirFollowers, account, start, pageSize)
}

// FollowingPage returns accounts followed by account in [start, start+pageSize).
func (c *RelationshipClient) FollowingPage(ctx context.Context, account domain.AccountID, start uint64, pageSize int) ([]domain.AccountID, error) {
	return c.page(ctx, dirFollowing, account, start, pageSize)
}

func (c *RelationshipClient) page(ctx context.Context, dir direction, account domain.AccountID, start uint64, pageSize int) ([]domain.AccountID, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	raw, err := c.rawPage(ctx, dir, acct, start, pageSize)
	if err != nil {
		return nil, err
	}
	return c.normalizePage(dir, acct, raw), nil
}

// AllFollowers walks every follower page sequentially until a short page.
func (c *RelationshipClient) AllFollowers(ctx context.Context, account domain.AccountID) ([]domain.AccountID, error) {
	return c.all(ctx, dirFollowers, account)
}

// AllFollowing walks every following page sequentially until a short page.
func (c *RelationshipClient) AllFollowing(ctx context.Context, account domain.AccountID) ([]domain.AccountID, error) {
	return c.all(ctx, dirFollowing, account)
}

// all pages one direction. Each page's start depends on the previous page's
// observed length, so pages are never fetched concurrently. The ledger may
// mutate between pages; no earlier count is trusted.
func (c *RelationshipClient) all(ctx context.Context, dir direction, account domain.AccountID) ([]domain.AccountID, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}

	var (
		out   []domain.AccountID
		start uint64
	)
	for pages := 0; pages < c.maxPages; pages++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewOpError("all"+dir.String(), acct, domain.ErrLedgerUnavailable, err)
		}

		// The cursor advances by the raw page length so malformed entries do not shift it.
		raw, err := c.rawPage(ctx, dir, acct, start, c.pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, c.normalizePage(dir, acct, raw)...)

		if len(raw) < c.pageSize {
			return out, nil
		}
		start += uint64(len(raw))
	}

	// Every allowed page was full. One extra entry tells an exact fit apart
	// from a truncated walk.
	more, err := c.rawPage(ctx, dir, acct, start, 1)
	if err != nil {
		return nil, err
	}
	if len(more) == 0 {
		return out, nil
	}
	c.logger.Warn("page limit reached while walking relationships",
		zap.String("direction", dir.String()),
		zap.String("account", string(acct)),
		zap.Int("max_pages", c.maxPages))
	return nil, domain.NewOpError("all"+dir.String(), acct, domain.ErrLedgerUnavailable,
		fmt.Errorf("%w: more than %d pages", ErrPageLimit, c.maxPages))
}

func (c *RelationshipClient) rawPage(ctx context.Context, dir direction, acct domain.AccountID, start uint64, pageSize int) ([]string, error) {
	end := start + uint64(pageSize)
	var (
		raw []string
		err error
	)
	if dir == dirFollowers {
		raw, err = c.service.GetFollowersByIndex(ctx, string(acct), start, end)
	} else {
		raw, err = c.service.GetFollowsByIndex(ctx, string(acct), start, end)
	}
	if err != nil {
		return nil, domain.NewOpError(dir.String()+"Page", acct, domain.ErrLedgerUnavailable, err)
	}
	// A ledger that over-returns is clamped to the requested range.
	if len(raw) > pageSize {
		raw = raw[:pageSize]
	}
	return raw, nil
}

func (c *RelationshipClient) normalizePage(dir direction, acct domain.AccountID, raw []string) []domain.AccountID {
	out := make([]domain.AccountID, 0, len(raw))
	for _, r := range raw {
		id, err := domain.NormalizeAccount(r)
		if err != nil {
			c.logger.Warn("skipping malformed account from ledger",
				zap.String("direction", dir.String()),
				zap.String("account", string(acct)),
				zap.String("value", r))
			continue
		}
		out = append(out, id)
	}
	return out
}

// IsFollowing reports whether from follows to.
func (c *RelationshipClient) IsFollowing(ctx context.Context, from, to domain.AccountID) (bool, error) {
	f, err := domain.NormalizeAccount(string(from))
	if err != nil {
		return false, err
	}
	t, err := domain.NormalizeAccount(string(to))
	if err != nil {
		return false, err
	}
	ok, err := c.service.IsFollowing(ctx, string(f), string(t))
	if err != nil {
		return false, domain.NewOpError("isFollowing", f, domain.ErrLedgerUnavailable, err)
	}
	return ok, nil
}

// Follow submits a single follow of target by the signer's account.
func (c *RelationshipClient) Follow(ctx context.Context, target domain.AccountID) (domain.TxHandle, error) {
	return c.single(ctx, MethodFollow, target)
}

// Unfollow submits a single unfollow of target by the signer's account.
func (c *RelationshipClient) Unfollow(ctx context.Context, target domain.AccountID) (domain.TxHandle, error) {
	return c.single(ctx, MethodUnfollow, target)
}

func (c *RelationshipClient) single(ctx context.Context, method string, target domain.AccountID) (domain.TxHandle, error) {
	t, err := domain.NormalizeAccount(string(target))
	if err != nil {
		return "", err
	}
	tx, err := c.sign(method, []domain.AccountID{t})
	if err != nil {
		return "", domain.NewOpError(method, t, domain.ErrMutationRejected, err)
	}

	var sig string
	if method == MethodFollow {
		sig, err = c.service.Follow(ctx, tx)
	} else {
		sig, err = c.service.Unfollow(ctx, tx)
	}
	if err != nil {
		return "", classifyWriteError(method, t, err)
	}
	c.logger.Debug("mutation submitted",
		zap.String("method", method),
		zap.String("target", string(t)),
		zap.String("tx", sig))
	return domain.TxHandle(sig), nil
}

// FollowBatch submits a batch follow. Targets beyond MaxBatchSize are not
// submitted and are returned in Excluded.
func (c *RelationshipClient) FollowBatch(ctx context.Context, targets []domain.AccountID) (*BatchSubmission, error) {
	return c.batch(ctx, MethodFollowBatch, targets)
}

// UnfollowBatch submits a batch unfollow with the same cap policy as FollowBatch.
func (c *RelationshipClient) UnfollowBatch(ctx context.Context, targets []domain.AccountID) (*BatchSubmission, error) {
	return c.batch(ctx, MethodUnfollowBatch, targets)
}

func (c *RelationshipClient) batch(ctx context.Context, method string, targets []domain.AccountID) (*BatchSubmission, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%s: %w: empty target list", method, domain.ErrInvalidAccount)
	}

	normalized := make([]domain.AccountID, 0, len(targets))
	for _, t := range targets {
		id, err := domain.NormalizeAccount(string(t))
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, id)
	}

	sub, excluded := TruncateBatch(normalized)
	if len(excluded) > 0 {
		c.logger.Warn("batch exceeds ledger cap, truncating",
			zap.String("method", method),
			zap.Int("requested", len(normalized)),
			zap.Int("submitted", len(sub)),
			zap.Int("excluded", len(excluded)))
	}

	result := &BatchSubmission{Submitted: sub, Excluded: excluded}

	tx, err := c.sign(method, sub)
	if err != nil {
		return result, domain.NewOpError(method, "", domain.ErrMutationRejected, err)
	}

	var sig string
	if method == MethodFollowBatch {
		sig, err = c.service.FollowBatch(ctx, tx)
	} else {
		sig, err = c.service.UnfollowBatch(ctx, tx)
	}
	if err != nil {
		return result, classifyWriteError(method, "", err)
	}
	result.Handle = domain.TxHandle(sig)
	return result, nil
}

// TruncateBatch splits targets into the first MaxBatchSize and the excluded tail.
func TruncateBatch(targets []domain.AccountID) (submitted, excluded []domain.AccountID) {
	if len(targets) <= domain.MaxBatchSize {
		return targets, nil
	}
	return targets[:domain.MaxBatchSize], targets[domain.MaxBatchSize:]
}

func (c *RelationshipClient) sign(method string, targets []domain.AccountID) (*SignedTx, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	return c.signer.Sign(method, targets)
}

// classifyWriteError maps a service write error to MutationRejected (signer or
// permission refusal) or MutationFailed (everything else, including batch-level
// refusals a per-item retry can get past). The cause stays reachable, so
// IsAlreadyApplied still matches.
func classifyWriteError(method string, target domain.AccountID, err error) error {
	if IsRejection(err) || errors.Is(err, ErrBadSignature) {
		return domain.NewOpError(method, target, domain.ErrMutationRejected, err)
	}
	return domain.NewOpError(method, target, domain.ErrMutationFailed, err)
}
