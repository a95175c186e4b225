package domain

import "time"

// DefaultRetentionDays is how long daily stats are kept before the maintenance purge.
const DefaultRetentionDays = 60

// DailyStat is one account's relationship counts for a UTC calendar day.
// Unique per (Address, Date).
type DailyStat struct {
	Address        AccountID
	Date           time.Time // midnight UTC
	FollowerCount  int
	FollowingCount int
	MutualCount    int
	UpdatedAt      time.Time
}

// SameCounts reports whether two records carry identical counts.
func (s *DailyStat) SameCounts(other *DailyStat) bool {
	return s.FollowerCount == other.FollowerCount &&
		s.FollowingCount == other.FollowingCount &&
		s.MutualCount == other.MutualCount
}

// TruncateDay returns midnight UTC of t's UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// RetentionCutoff returns the first day still retained for the given window.
func RetentionCutoff(now time.Time, days int) time.Time {
	return TruncateDay(now).AddDate(0, 0, -days)
}
