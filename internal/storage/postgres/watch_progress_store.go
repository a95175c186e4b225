package postgres

import (
	"context"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
)

// WatchProgressStore is a PostgreSQL implementation of storage.WatchProgressStore.
// One row per watched account in watch_progress.
type WatchProgressStore struct {
	pool *Pool
}

// NewWatchProgressStore creates a new PostgreSQL watch progress store.
func NewWatchProgressStore(pool *Pool) *WatchProgressStore {
	return &WatchProgressStore{pool: pool}
}

var _ storage.WatchProgressStore = (*WatchProgressStore)(nil)

// GetProgress returns the last processed slot and signature for account.
func (s *WatchProgressStore) GetProgress(ctx context.Context, account domain.AccountID) (*storage.WatchProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account, slot, signature
		FROM watch_progress
		WHERE account = $1
	`, account.Key())

	var (
		progress storage.WatchProgress
		acct     string
	)
	if err := row.Scan(&acct, &progress.Slot, &progress.Signature); err != nil {
		if noRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	progress.Account = domain.AccountID(acct)
	return &progress, nil
}

// SetProgress saves the last processed position.
// Uses upsert to handle initial insert and subsequent updates.
func (s *WatchProgressStore) SetProgress(ctx context.Context, progress *storage.WatchProgress) error {
	if progress == nil || progress.Account == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO watch_progress (account, slot, signature, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account) DO UPDATE
		SET slot = EXCLUDED.slot,
		    signature = EXCLUDED.signature,
		    updated_at = NOW()
	`, progress.Account.Key(), progress.Slot, progress.Signature)

	return err
}
