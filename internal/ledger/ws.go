package ledger

import (
	"context"
	"strings"
)

// Subscriber delivers live follow-graph events.
type Subscriber interface {
	// SubscribeGraph subscribes to follow/unfollow events touching any of the accounts.
	SubscribeGraph(ctx context.Context, filter GraphFilter) (<-chan GraphEvent, error)

	// Close closes the underlying connection and all subscription channels.
	Close() error
}

// GraphFilter defines the subscription filter.
type GraphFilter struct {
	// Accounts filters events where the follower or the target is one of these.
	// Empty subscribes to every event.
	Accounts []string
}

// EventKind is the type of relationship change.
type EventKind string

const (
	EventFollow   EventKind = "follow"
	EventUnfollow EventKind = "unfollow"
)

// GraphEvent is one relationship change observed on the ledger.
type GraphEvent struct {
	Kind      EventKind
	Follower  string
	Target    string
	Slot      int64
	Signature string
}

// Touches reports whether account is either side of the event (case-insensitive).
func (e GraphEvent) Touches(account string) bool {
	return strings.EqualFold(e.Follower, account) || strings.EqualFold(e.Target, account)
}
