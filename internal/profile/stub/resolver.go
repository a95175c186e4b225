// Package stub provides an in-memory profile resolver for tests and local runs.
package stub

import (
	"context"
	"sync"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/profile"
)

// Resolver serves profiles from a map.
type Resolver struct {
	mu       sync.Mutex
	profiles map[string]*domain.ProfileMetadata
	failures map[string]error
	calls    int
}

var _ profile.Resolver = (*Resolver)(nil)

// NewResolver creates an empty stub resolver.
func NewResolver() *Resolver {
	return &Resolver{
		profiles: make(map[string]*domain.ProfileMetadata),
		failures: make(map[string]error),
	}
}

// Set stores a profile for account.
func (r *Resolver) Set(account domain.AccountID, p *domain.ProfileMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[account.Key()] = p
}

// Fail makes lookups of account return err wrapped as ErrMetadataUnavailable.
func (r *Resolver) Fail(account domain.AccountID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[account.Key()] = err
}

// Calls returns the number of Resolve invocations.
func (r *Resolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// Resolve returns the stored profile, nil if none.
func (r *Resolver) Resolve(_ context.Context, account domain.AccountID) (*domain.ProfileMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err, ok := r.failures[account.Key()]; ok {
		return nil, domain.NewOpError("resolveProfile", account, domain.ErrMetadataUnavailable, err)
	}
	return r.profiles[account.Key()], nil
}
