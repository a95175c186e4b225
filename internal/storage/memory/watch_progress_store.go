package memory

import (
	"context"
	"sync"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
)

// WatchProgressStore is an in-memory implementation of storage.WatchProgressStore.
type WatchProgressStore struct {
	mu       sync.RWMutex
	progress map[string]storage.WatchProgress
}

// NewWatchProgressStore creates a new in-memory watch progress store.
func NewWatchProgressStore() *WatchProgressStore {
	return &WatchProgressStore{
		progress: make(map[string]storage.WatchProgress),
	}
}

// GetProgress returns the last processed position for account.
func (s *WatchProgressStore) GetProgress(_ context.Context, account domain.AccountID) (*storage.WatchProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[account.Key()]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// SetProgress saves the last processed position.
func (s *WatchProgressStore) SetProgress(_ context.Context, progress *storage.WatchProgress) error {
	if progress == nil || progress.Account == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := *progress
	p.Account = domain.AccountID(progress.Account.Key())
	s.progress[p.Account.Key()] = p
	return nil
}

var _ storage.WatchProgressStore = (*WatchProgressStore)(nil)
