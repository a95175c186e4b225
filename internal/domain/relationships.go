package domain

import "time"

// Edge is a directed follow relation: Source follows Target.
type Edge struct {
	Source AccountID
	Target AccountID
}

// RelationshipSnapshot is a point-in-time view of one account's follow graph.
// Produced by a single aggregation and never mutated afterwards.
type RelationshipSnapshot struct {
	Account    AccountID
	ComputedAt time.Time

	followers       *AccountSet
	following       *AccountSet
	mutual          *AccountSet
	oneWayFollowers *AccountSet
	oneWayFollowing *AccountSet
}

// NewRelationshipSnapshot derives the mutual and one-way partitions from the raw
// follower and following sequences. Identifiers are lower-cased before set construction.
func NewRelationshipSnapshot(account AccountID, followers, following []AccountID, computedAt time.Time) *RelationshipSnapshot {
	f := NewAccountSet(followers...)
	g := NewAccountSet(following...)
	mutual := f.Intersect(g)

	return &RelationshipSnapshot{
		Account:         AccountID(account.Key()),
		ComputedAt:      computedAt,
		followers:       f,
		following:       g,
		mutual:          mutual,
		oneWayFollowers: f.Difference(mutual),
		oneWayFollowing: g.Difference(mutual),
	}
}

// Followers returns accounts following Account, in ledger order.
func (s *RelationshipSnapshot) Followers() []AccountID { return s.followers.Slice() }

// Following returns accounts Account follows, in ledger order.
func (s *RelationshipSnapshot) Following() []AccountID { return s.following.Slice() }

// Mutual returns followers that Account also follows.
func (s *RelationshipSnapshot) Mutual() []AccountID { return s.mutual.Slice() }

// OneWayFollowers returns followers Account does not follow back.
func (s *RelationshipSnapshot) OneWayFollowers() []AccountID { return s.oneWayFollowers.Slice() }

// OneWayFollowing returns accounts Account follows that do not follow back.
func (s *RelationshipSnapshot) OneWayFollowing() []AccountID { return s.oneWayFollowing.Slice() }

func (s *RelationshipSnapshot) FollowerCount() int  { return s.followers.Len() }
func (s *RelationshipSnapshot) FollowingCount() int { return s.following.Len() }
func (s *RelationshipSnapshot) MutualCount() int    { return s.mutual.Len() }

// IsFollowedBy reports whether id follows Account.
func (s *RelationshipSnapshot) IsFollowedBy(id AccountID) bool { return s.followers.Contains(id) }

// IsFollowing reports whether Account follows id.
func (s *RelationshipSnapshot) IsFollowing(id AccountID) bool { return s.following.Contains(id) }

// IsMutual reports whether Account and id follow each other.
func (s *RelationshipSnapshot) IsMutual(id AccountID) bool { return s.mutual.Contains(id) }

// Empty reports whether the account has no edges in either direction.
func (s *RelationshipSnapshot) Empty() bool {
	return s.followers.Len() == 0 && s.following.Len() == 0
}

// DailyStat converts the snapshot counts into a history record for its UTC day.
func (s *RelationshipSnapshot) DailyStat() *DailyStat {
	return &DailyStat{
		Address:        s.Account,
		Date:           TruncateDay(s.ComputedAt),
		FollowerCount:  s.FollowerCount(),
		FollowingCount: s.FollowingCount(),
		MutualCount:    s.MutualCount(),
		UpdatedAt:      s.ComputedAt,
	}
}

// RelationshipCounts are the ledger-reported follower and following totals.
type RelationshipCounts struct {
	Account        AccountID
	FollowerCount  uint64
	FollowingCount uint64
}
