package storage

import (
	"context"
	"time"

	"social-graph-lab/internal/domain"
)

// UpsertResult describes what an upsert did.
type UpsertResult int

const (
	// Unchanged means an identical row already existed; nothing was written.
	Unchanged UpsertResult = iota
	// Inserted means no row existed for (address, date).
	Inserted
	// Updated means the existing row carried different counts and was overwritten.
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// SnapshotStore persists one relationship-count record per account per UTC day.
type SnapshotStore interface {
	// UpsertDailyStats writes stat keyed by (Address, Date truncated to the UTC day).
	// Identical counts are a no-op; different counts overwrite.
	UpsertDailyStats(ctx context.Context, stat *domain.DailyStat) (UpsertResult, error)

	// GetStats returns the records for address whose date falls within the
	// lookbackDays UTC days ending at now (inclusive), ordered by date ASC.
	GetStats(ctx context.Context, address domain.AccountID, lookbackDays int, now time.Time) ([]*domain.DailyStat, error)

	// RandomAccountPool returns up to limit distinct previously observed addresses,
	// none of which appear in exclude.
	RandomAccountPool(ctx context.Context, limit int, exclude []domain.AccountID) ([]domain.AccountID, error)

	// PurgeOlderThan deletes records dated before the UTC day of cutoff.
	// Returns the number of records removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WatchProgress is the last ledger event applied for a watched account.
type WatchProgress struct {
	Account   domain.AccountID
	Slot      int64  // last processed ledger slot
	Signature string // last processed event signature
}

// WatchProgressStore persists watcher positions so restarts skip replayed events.
type WatchProgressStore interface {
	// GetProgress returns the saved position. Returns ErrNotFound if none exists.
	GetProgress(ctx context.Context, account domain.AccountID) (*WatchProgress, error)

	// SetProgress saves the position for progress.Account.
	SetProgress(ctx context.Context, progress *WatchProgress) error
}

// ValidateStat checks the fields every backend requires.
func ValidateStat(stat *domain.DailyStat) error {
	if stat == nil || stat.Address == "" || stat.Date.IsZero() {
		return ErrInvalidInput
	}
	if stat.FollowerCount < 0 || stat.FollowingCount < 0 || stat.MutualCount < 0 {
		return ErrInvalidInput
	}
	return nil
}

// LookbackWindow returns the first and last UTC day covered by a lookback.
func LookbackWindow(lookbackDays int, now time.Time) (from, to time.Time, err error) {
	if lookbackDays <= 0 {
		return time.Time{}, time.Time{}, ErrInvalidInput
	}
	to = domain.TruncateDay(now)
	from = to.AddDate(0, 0, -(lookbackDays - 1))
	return from, to, nil
}

// ExcludeSet lower-cases exclude into a lookup set.
func ExcludeSet(exclude []domain.AccountID) map[string]struct{} {
	set := make(map[string]struct{}, len(exclude))
	for _, a := range exclude {
		set[a.Key()] = struct{}{}
	}
	return set
}
