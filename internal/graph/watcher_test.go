package graph_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/graph"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/ledger/stub"
	"social-graph-lab/internal/storage"
	"social-graph-lab/internal/storage/memory"
)

// chanSubscriber hands out a single test-controlled channel.
type chanSubscriber struct {
	events chan ledger.GraphEvent
	filter ledger.GraphFilter
}

func (s *chanSubscriber) SubscribeGraph(_ context.Context, f ledger.GraphFilter) (<-chan ledger.GraphEvent, error) {
	s.filter = f
	return s.events, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestWatcher_OnAccountChanged(t *testing.T) {
	l := stub.NewLedger()
	owner := acct(1)
	sub := &chanSubscriber{events: make(chan ledger.GraphEvent, 4)}
	progress := memory.NewWatchProgressStore()

	w, err := graph.NewWatcher(graph.WatcherOptions{
		Account:    owner,
		Subscriber: sub,
		Aggregator: newAggregator(l, nil),
		Progress:   progress,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []*domain.RelationshipSnapshot
	done := make(chan struct{}, 4)
	unsubscribe := w.OnAccountChanged(func(s *domain.RelationshipSnapshot) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
		done <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	l.AddFollow(string(acct(2)), string(owner))
	sub.events <- ledger.GraphEvent{Kind: ledger.EventFollow, Follower: string(acct(2)), Target: string(owner), Slot: 10}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].FollowerCount())
	mu.Unlock()

	p, err := progress.GetProgress(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Slot)
	assert.Equal(t, []string{string(owner)}, sub.filter.Accounts)

	// Unrelated and replayed events are ignored; after unsubscribe nothing is delivered.
	unsubscribe()
	unsubscribe()
	sub.events <- ledger.GraphEvent{Kind: ledger.EventFollow, Follower: string(acct(7)), Target: string(acct(8)), Slot: 11}
	sub.events <- ledger.GraphEvent{Kind: ledger.EventUnfollow, Follower: string(acct(2)), Target: string(owner), Slot: 12}
	close(sub.events)

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestWatcher_SkipsAlreadyProcessedSlots(t *testing.T) {
	l := stub.NewLedger()
	owner := acct(1)
	progress := memory.NewWatchProgressStore()
	require.NoError(t, progress.SetProgress(context.Background(), &storage.WatchProgress{Account: owner, Slot: 50}))

	sub := &chanSubscriber{events: make(chan ledger.GraphEvent, 2)}
	w, err := graph.NewWatcher(graph.WatcherOptions{
		Account: owner, Subscriber: sub, Aggregator: newAggregator(l, nil), Progress: progress,
	})
	require.NoError(t, err)

	calls := 0
	w.OnAccountChanged(func(*domain.RelationshipSnapshot) { calls++ })

	sub.events <- ledger.GraphEvent{Kind: ledger.EventFollow, Follower: string(acct(2)), Target: string(owner), Slot: 40}
	sub.events <- ledger.GraphEvent{Kind: ledger.EventFollow, Follower: string(acct(3)), Target: string(owner), Slot: 51}
	close(sub.events)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := graph.NewWatcher(graph.WatcherOptions{Account: "bad"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = graph.NewWatcher(graph.WatcherOptions{Account: acct(1)})
	assert.Error(t, err)
}
