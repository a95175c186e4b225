package domain

import "fmt"

// MaxCandidateSources caps the seed accounts retained to explain a candidate.
const MaxCandidateSources = 10

// Reason explains why a candidate was recommended.
type Reason string

const (
	ReasonHighlyPopular         Reason = "HIGHLY_POPULAR"
	ReasonPopular               Reason = "POPULAR"
	ReasonSeveralMutual         Reason = "SEVERAL_MUTUAL"
	ReasonFollowedByConnections Reason = "FOLLOWED_BY_CONNECTIONS"
	ReasonGrowingProfile        Reason = "GROWING_PROFILE"
	ReasonTrending              Reason = "TRENDING"
)

// Describe renders the display text for a reason.
func (r Reason) Describe(mutualCount int) string {
	switch r {
	case ReasonHighlyPopular:
		return "Highly popular in your network"
	case ReasonPopular:
		return "Popular in your network"
	case ReasonSeveralMutual:
		return "Several mutual connections"
	case ReasonFollowedByConnections:
		if mutualCount == 1 {
			return "Followed by 1 of your connections"
		}
		return fmt.Sprintf("Followed by %d of your connections", mutualCount)
	case ReasonTrending:
		return "Trending / growing profile"
	default:
		return "Growing profile"
	}
}

// Candidate is a recommended account to follow.
type Candidate struct {
	Account     AccountID
	MutualCount int         // seed hits across both directions
	Sources     []AccountID // seed accounts that surfaced this candidate, capped
	Score       int         // 0..100
	Reason      Reason
	Profile     *ProfileMetadata // nil when no profile could be resolved
}

// AddSource appends seed to Sources if not present and under the cap.
func (c *Candidate) AddSource(seed AccountID) {
	if len(c.Sources) >= MaxCandidateSources {
		return
	}
	for _, s := range c.Sources {
		if s.Equal(seed) {
			return
		}
	}
	c.Sources = append(c.Sources, seed)
}

// ReasonText returns the display text for the candidate's reason.
func (c *Candidate) ReasonText() string {
	return c.Reason.Describe(c.MutualCount)
}
