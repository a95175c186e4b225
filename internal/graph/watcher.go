package graph

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/observability"
	"social-graph-lab/internal/storage"
)

// ChangeHandler receives a fresh snapshot after a relationship change.
type ChangeHandler func(snapshot *domain.RelationshipSnapshot)

// Watcher re-aggregates an account whenever the ledger reports a follow or
// unfollow touching it, and notifies registered handlers.
type Watcher struct {
	account    domain.AccountID
	subscriber ledger.Subscriber
	aggregator *Aggregator
	progress   storage.WatchProgressStore
	logger     *zap.Logger

	mu       sync.Mutex
	handlers map[int]ChangeHandler
	nextID   int
}

// WatcherOptions configures Watcher.
type WatcherOptions struct {
	Account    domain.AccountID
	Subscriber ledger.Subscriber
	Aggregator *Aggregator
	Progress   storage.WatchProgressStore // optional; skips events at or before the saved slot
	Logger     *zap.Logger
}

// NewWatcher creates a watcher for one account.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	acct, err := domain.NormalizeAccount(string(opts.Account))
	if err != nil {
		return nil, err
	}
	if opts.Subscriber == nil || opts.Aggregator == nil {
		return nil, errors.New("watcher requires a subscriber and an aggregator")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		account:    acct,
		subscriber: opts.Subscriber,
		aggregator: opts.Aggregator,
		progress:   opts.Progress,
		logger:     logger.With(zap.String("account", string(acct))),
		handlers:   make(map[int]ChangeHandler),
	}, nil
}

// OnAccountChanged registers handler and returns a function that unregisters it.
func (w *Watcher) OnAccountChanged(handler ChangeHandler) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.handlers, id)
			w.mu.Unlock()
		})
	}
}

// Run subscribes and processes events until ctx is done or the subscription closes.
func (w *Watcher) Run(ctx context.Context) error {
	events, err := w.subscriber.SubscribeGraph(ctx, ledger.GraphFilter{
		Accounts: []string{string(w.account)},
	})
	if err != nil {
		return err
	}

	lastSlot := w.loadProgress(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !ev.Touches(string(w.account)) {
				continue
			}
			if ev.Slot > 0 && ev.Slot <= lastSlot {
				continue
			}
			observability.RecordLedgerEvent(string(ev.Kind))
			w.handle(ctx, ev)
			if ev.Slot > lastSlot {
				lastSlot = ev.Slot
				w.saveProgress(ctx, ev)
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev ledger.GraphEvent) {
	snapshot, err := w.aggregator.ComputeRelationships(ctx, w.account)
	if err != nil {
		w.logger.Warn("re-aggregation after ledger event failed",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("slot", ev.Slot),
			zap.Error(err))
		return
	}

	w.mu.Lock()
	handlers := make([]ChangeHandler, 0, len(w.handlers))
	for i := 0; i < w.nextID; i++ {
		if h, ok := w.handlers[i]; ok {
			handlers = append(handlers, h)
		}
	}
	w.mu.Unlock()

	for _, h := range handlers {
		h(snapshot)
	}
}

func (w *Watcher) loadProgress(ctx context.Context) int64 {
	if w.progress == nil {
		return 0
	}
	p, err := w.progress.GetProgress(ctx, w.account)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			w.logger.Warn("load watch progress failed", zap.Error(err))
		}
		return 0
	}
	return p.Slot
}

func (w *Watcher) saveProgress(ctx context.Context, ev ledger.GraphEvent) {
	if w.progress == nil {
		return
	}
	err := w.progress.SetProgress(ctx, &storage.WatchProgress{
		Account:   w.account,
		Slot:      ev.Slot,
		Signature: ev.Signature,
	})
	if err != nil {
		observability.RecordPersistenceFailure("watch_progress")
		w.logger.Warn("save watch progress failed", zap.Error(err))
	}
}
