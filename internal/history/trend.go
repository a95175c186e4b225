package history

import (
	"time"

	"social-graph-lab/internal/domain"
)

// Trend is the change in counts between the first and last record of a window.
type Trend struct {
	Account        domain.AccountID
	From           time.Time
	To             time.Time
	Days           int // records in the window
	FollowerDelta  int
	FollowingDelta int
	MutualDelta    int
}

// Growing reports whether the follower count rose over the window.
func (t *Trend) Growing() bool {
	return t.FollowerDelta > 0
}

// ComputeTrend derives the deltas from stats ordered by date ascending.
// Fewer than two records yields zero deltas.
func ComputeTrend(account domain.AccountID, stats []*domain.DailyStat) *Trend {
	t := &Trend{Account: account, Days: len(stats)}
	if len(stats) == 0 {
		return t
	}
	first, last := stats[0], stats[len(stats)-1]
	t.From = first.Date
	t.To = last.Date
	t.FollowerDelta = last.FollowerCount - first.FollowerCount
	t.FollowingDelta = last.FollowingCount - first.FollowingCount
	t.MutualDelta = last.MutualCount - first.MutualCount
	return t
}
