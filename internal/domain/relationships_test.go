package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewRelationshipSnapshot_Partitions(t *testing.T) {
	// A is followed by B, C, D and follows C, D, E.
	snap := NewRelationshipSnapshot("0xA",
		[]AccountID{"0xB", "0xC", "0xD"},
		[]AccountID{"0xC", "0xD", "0xE"},
		time.Date(2026, 10, 17, 15, 4, 5, 0, time.UTC),
	)

	assert.Equal(t, []AccountID{"0xc", "0xd"}, snap.Mutual())
	assert.Equal(t, []AccountID{"0xb"}, snap.OneWayFollowers())
	assert.Equal(t, []AccountID{"0xe"}, snap.OneWayFollowing())
	assert.Equal(t, 2, snap.MutualCount())
	assert.Equal(t, 3, snap.FollowerCount())
	assert.Equal(t, 3, snap.FollowingCount())
	assert.True(t, snap.IsMutual("0xC"))
	assert.False(t, snap.IsMutual("0xB"))
}

func TestNewRelationshipSnapshot_CaseInsensitive(t *testing.T) {
	snap := NewRelationshipSnapshot("0xA",
		[]AccountID{"0xABC", "0xdef"},
		[]AccountID{"0xabc", "0xDEF", "0xDEF"},
		time.Now(),
	)

	assert.Equal(t, 2, snap.MutualCount())
	assert.Empty(t, snap.OneWayFollowers())
	assert.Empty(t, snap.OneWayFollowing())
	assert.Equal(t, 2, snap.FollowingCount())
}

func TestNewRelationshipSnapshot_PartitionInvariant(t *testing.T) {
	followers := []AccountID{"0x1", "0x2", "0x3", "0x4", "0x5"}
	following := []AccountID{"0x4", "0x5", "0x6", "0x7"}

	ab := NewRelationshipSnapshot("0xA", followers, following, time.Now())

	// mutual must equal followers ∩ following
	for _, m := range ab.Mutual() {
		assert.True(t, ab.IsFollowedBy(m))
		assert.True(t, ab.IsFollowing(m))
	}

	// one-way sets are disjoint and disjoint from mutual
	oneWay := NewAccountSet(ab.OneWayFollowers()...)
	for _, id := range ab.OneWayFollowing() {
		assert.False(t, oneWay.Contains(id))
		assert.False(t, ab.IsMutual(id))
	}

	// union of partitions covers followers ∪ following exactly
	total := len(ab.Mutual()) + len(ab.OneWayFollowers()) + len(ab.OneWayFollowing())
	union := NewAccountSet(append(append([]AccountID{}, followers...), following...)...)
	assert.Equal(t, union.Len(), total)
}

func TestRelationshipSnapshot_DailyStat(t *testing.T) {
	at := time.Date(2026, 10, 17, 23, 59, 0, 0, time.FixedZone("X", -3*3600))
	snap := NewRelationshipSnapshot("0xA", []AccountID{"0xB"}, []AccountID{"0xB", "0xC"}, at)

	stat := snap.DailyStat()
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), stat.Date)
	assert.Equal(t, 1, stat.FollowerCount)
	assert.Equal(t, 2, stat.FollowingCount)
	assert.Equal(t, 1, stat.MutualCount)
}

func TestRelationshipSnapshot_Empty(t *testing.T) {
	snap := NewRelationshipSnapshot("0xA", nil, nil, time.Now())
	assert.True(t, snap.Empty())
	assert.Equal(t, 0, snap.MutualCount())
}
