package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu    sync.RWMutex
	stats map[string]map[time.Time]*domain.DailyStat // address -> day -> record
	now   func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return NewSnapshotStoreWithSeed(time.Now().UnixNano())
}

// NewSnapshotStoreWithSeed creates a store whose pool sampling is reproducible.
func NewSnapshotStoreWithSeed(seed int64) *SnapshotStore {
	return &SnapshotStore{
		stats: make(map[string]map[time.Time]*domain.DailyStat),
		now:   time.Now,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// UpsertDailyStats writes stat unless an identical record exists.
func (s *SnapshotStore) UpsertDailyStats(_ context.Context, stat *domain.DailyStat) (storage.UpsertResult, error) {
	if err := storage.ValidateStat(stat); err != nil {
		return storage.Unchanged, err
	}

	key := stat.Address.Key()
	day := domain.TruncateDay(stat.Date)

	s.mu.Lock()
	defer s.mu.Unlock()

	byDay, ok := s.stats[key]
	if !ok {
		byDay = make(map[time.Time]*domain.DailyStat)
		s.stats[key] = byDay
	}

	statCopy := *stat
	statCopy.Address = domain.AccountID(key)
	statCopy.Date = day
	if statCopy.UpdatedAt.IsZero() {
		statCopy.UpdatedAt = s.now().UTC()
	}

	existing, ok := byDay[day]
	if !ok {
		byDay[day] = &statCopy
		return storage.Inserted, nil
	}
	if existing.SameCounts(&statCopy) {
		return storage.Unchanged, nil
	}
	byDay[day] = &statCopy
	return storage.Updated, nil
}

// GetStats returns records within the lookback window, ordered by date ASC.
func (s *SnapshotStore) GetStats(_ context.Context, address domain.AccountID, lookbackDays int, now time.Time) ([]*domain.DailyStat, error) {
	from, to, err := storage.LookbackWindow(lookbackDays, now)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.DailyStat
	for day, stat := range s.stats[address.Key()] {
		if day.Before(from) || day.After(to) {
			continue
		}
		statCopy := *stat
		out = append(out, &statCopy)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// RandomAccountPool samples up to limit observed addresses uniformly, like
// ORDER BY random() LIMIT n in the SQL backends.
func (s *SnapshotStore) RandomAccountPool(_ context.Context, limit int, exclude []domain.AccountID) ([]domain.AccountID, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}
	skip := storage.ExcludeSet(exclude)

	s.mu.RLock()
	addresses := make([]string, 0, len(s.stats))
	for addr, byDay := range s.stats {
		if len(byDay) == 0 {
			continue
		}
		if _, excluded := skip[addr]; excluded {
			continue
		}
		addresses = append(addresses, addr)
	}
	s.mu.RUnlock()

	// Sort first so a seeded store draws the same sample regardless of map order.
	sort.Strings(addresses)
	s.rngMu.Lock()
	s.rng.Shuffle(len(addresses), func(i, j int) {
		addresses[i], addresses[j] = addresses[j], addresses[i]
	})
	s.rngMu.Unlock()
	if len(addresses) > limit {
		addresses = addresses[:limit]
	}

	out := make([]domain.AccountID, len(addresses))
	for i, a := range addresses {
		out[i] = domain.AccountID(a)
	}
	return out, nil
}

// PurgeOlderThan deletes records dated before cutoff's UTC day.
func (s *SnapshotStore) PurgeOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	day := domain.TruncateDay(cutoff)

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for addr, byDay := range s.stats {
		for d := range byDay {
			if d.Before(day) {
				delete(byDay, d)
				removed++
			}
		}
		if len(byDay) == 0 {
			delete(s.stats, addr)
		}
	}
	return removed, nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
