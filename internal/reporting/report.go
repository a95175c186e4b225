package reporting

import "time"

// Report is a point-in-time export of one account's graph.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Account     string

	// Counts from the aggregation
	Summary SummarySection

	// Partition membership, one row per (relation, account)
	Relationships []RelationshipRow

	// Ranked recommendations (empty when not requested)
	Recommendations []RecommendationRow

	// Daily history, ascending by date, and the window trend
	History []HistoryRow
	Trend   *TrendRow
}

// SummarySection holds the headline counts.
type SummarySection struct {
	Followers       int
	Following       int
	Mutual          int
	OneWayFollowers int
	OneWayFollowing int
	ComputedAt      time.Time
}

// Relation names used in RelationshipRow.
const (
	RelationMutual          = "mutual"
	RelationOneWayFollower  = "one_way_follower"
	RelationOneWayFollowing = "one_way_following"
)

// RelationshipRow is one account in one partition.
type RelationshipRow struct {
	Relation string
	Account  string
}

// RecommendationRow is one ranked candidate.
type RecommendationRow struct {
	Rank        int
	Account     string
	DisplayName string
	Score       int
	MutualCount int
	Reason      string
	Sources     int
}

// HistoryRow is one stored daily stat.
type HistoryRow struct {
	Date      string // YYYY-MM-DD
	Followers int
	Following int
	Mutual    int
}

// TrendRow is the change across the history window.
type TrendRow struct {
	Days           int
	FollowerDelta  int
	FollowingDelta int
	MutualDelta    int
}
