// Package stub provides an in-memory ledger for tests and local runs.
package stub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"social-graph-lab/internal/ledger"
)

// ErrUnavailable is the default injected failure.
var ErrUnavailable = errors.New("stub ledger unavailable")

// Ledger implements ledger.Service over in-memory follow lists.
// Index order is insertion order; unfollow removes and shifts like the on-chain set.
type Ledger struct {
	mu        sync.Mutex
	followers map[string][]string // account -> accounts following it
	following map[string][]string // account -> accounts it follows

	// Failure injection. Keys are method names (ledger.Method*).
	FailMethods map[string]error
	// FailAccounts fails reads whose account argument matches (lower-cased).
	FailAccounts map[string]error
	// FailTargets fails single writes for the given target (lower-cased).
	FailTargets map[string]error
	// VerifySignatures rejects writes whose envelope signature does not verify.
	VerifySignatures bool
	// RejectRedundant refuses writes that would not change an edge, the way
	// the production ledger does. Batches fail as a whole.
	RejectRedundant bool

	// Calls counts invocations per method.
	Calls map[string]int
	// Submitted records every accepted write envelope.
	Submitted []*ledger.SignedTx

	txCounter int
}

// Compile-time interface check.
var _ ledger.Service = (*Ledger)(nil)

// NewLedger creates an empty stub ledger.
func NewLedger() *Ledger {
	return &Ledger{
		followers:    make(map[string][]string),
		following:    make(map[string][]string),
		FailMethods:  make(map[string]error),
		FailAccounts: make(map[string]error),
		FailTargets:  make(map[string]error),
		Calls:        make(map[string]int),
	}
}

// AddFollow records that follower follows target. Duplicate edges are ignored.
func (l *Ledger) AddFollow(follower, target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addFollowLocked(strings.ToLower(follower), strings.ToLower(target))
}

// RemoveFollow deletes the edge follower -> target if present.
func (l *Ledger) RemoveFollow(follower, target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeFollowLocked(strings.ToLower(follower), strings.ToLower(target))
}

// SetFailure injects err for method. A nil err clears it.
func (l *Ledger) SetFailure(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.FailMethods, method)
		return
	}
	l.FailMethods[method] = err
}

// CallCount returns how many times method was invoked.
func (l *Ledger) CallCount(method string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Calls[method]
}

func (l *Ledger) addFollowLocked(follower, target string) {
	for _, f := range l.following[follower] {
		if f == target {
			return
		}
	}
	l.following[follower] = append(l.following[follower], target)
	l.followers[target] = append(l.followers[target], follower)
}

func (l *Ledger) followsLocked(follower, target string) bool {
	for _, f := range l.following[follower] {
		if f == target {
			return true
		}
	}
	return false
}

func (l *Ledger) removeFollowLocked(follower, target string) {
	l.following[follower] = remove(l.following[follower], target)
	l.followers[target] = remove(l.followers[target], follower)
}

func remove(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			out := make([]string, 0, len(list)-1)
			out = append(out, list[:i]...)
			return append(out, list[i+1:]...)
		}
	}
	return list
}

// enter records the call and returns any injected failure.
func (l *Ledger) enter(method, account string) error {
	l.Calls[method]++
	if err, ok := l.FailMethods[method]; ok {
		return err
	}
	if err, ok := l.FailAccounts[strings.ToLower(account)]; ok {
		return err
	}
	return nil
}

// FollowerCount returns the follower count.
func (l *Ledger) FollowerCount(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ledger.MethodFollowerCount, account); err != nil {
		return 0, err
	}
	return uint64(len(l.followers[strings.ToLower(account)])), nil
}

// FollowingCount returns the following count.
func (l *Ledger) FollowingCount(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ledger.MethodFollowingCount, account); err != nil {
		return 0, err
	}
	return uint64(len(l.following[strings.ToLower(account)])), nil
}

// GetFollowersByIndex returns followers in [start, end) clamped to the live count.
func (l *Ledger) GetFollowersByIndex(_ context.Context, account string, start, end uint64) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ledger.MethodGetFollowersByIndex, account); err != nil {
		return nil, err
	}
	return sliceRange(l.followers[strings.ToLower(account)], start, end), nil
}

// GetFollowsByIndex returns followed accounts in [start, end) clamped to the live count.
func (l *Ledger) GetFollowsByIndex(_ context.Context, account string, start, end uint64) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ledger.MethodGetFollowsByIndex, account); err != nil {
		return nil, err
	}
	return sliceRange(l.following[strings.ToLower(account)], start, end), nil
}

func sliceRange(list []string, start, end uint64) []string {
	n := uint64(len(list))
	if start >= n || end <= start {
		return []string{}
	}
	if end > n {
		end = n
	}
	out := make([]string, end-start)
	copy(out, list[start:end])
	return out
}

// IsFollowing reports whether follower follows target.
func (l *Ledger) IsFollowing(_ context.Context, follower, target string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enter(ledger.MethodIsFollowing, follower); err != nil {
		return false, err
	}
	return l.followsLocked(strings.ToLower(follower), strings.ToLower(target)), nil
}

// Follow applies a single follow.
func (l *Ledger) Follow(_ context.Context, tx *ledger.SignedTx) (string, error) {
	return l.write(ledger.MethodFollow, tx, false, true)
}

// Unfollow applies a single unfollow.
func (l *Ledger) Unfollow(_ context.Context, tx *ledger.SignedTx) (string, error) {
	return l.write(ledger.MethodUnfollow, tx, false, false)
}

// FollowBatch applies a batch follow atomically.
func (l *Ledger) FollowBatch(_ context.Context, tx *ledger.SignedTx) (string, error) {
	return l.write(ledger.MethodFollowBatch, tx, true, true)
}

// UnfollowBatch applies a batch unfollow atomically.
func (l *Ledger) UnfollowBatch(_ context.Context, tx *ledger.SignedTx) (string, error) {
	return l.write(ledger.MethodUnfollowBatch, tx, true, false)
}

func (l *Ledger) write(method string, tx *ledger.SignedTx, batch, follow bool) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tx == nil {
		return "", &ledger.RPCError{Code: ledger.CodeInvalidSignature, Message: "missing transaction"}
	}
	if err := l.enter(method, tx.Account); err != nil {
		return "", err
	}
	if l.VerifySignatures {
		if err := ledger.VerifySignedTx(tx); err != nil {
			return "", &ledger.RPCError{Code: ledger.CodeInvalidSignature, Message: err.Error()}
		}
	}
	if batch && len(tx.Targets) > ledger.MaxPageSize {
		return "", &ledger.RPCError{Code: ledger.CodeBatchTooLarge, Message: "batch exceeds 50 targets"}
	}
	if !batch && len(tx.Targets) != 1 {
		return "", &ledger.RPCError{Code: ledger.CodeInvalidSignature, Message: "single write needs one target"}
	}
	if !batch {
		if err, ok := l.FailTargets[strings.ToLower(tx.Targets[0])]; ok {
			return "", err
		}
	}

	follower := strings.ToLower(tx.Account)
	if l.RejectRedundant {
		for _, t := range tx.Targets {
			if l.followsLocked(follower, strings.ToLower(t)) == follow {
				return "", &ledger.RPCError{Code: ledger.CodeAlreadyApplied, Message: "edge already in requested state: " + t}
			}
		}
	}
	for _, t := range tx.Targets {
		if follow {
			l.addFollowLocked(follower, strings.ToLower(t))
		} else {
			l.removeFollowLocked(follower, strings.ToLower(t))
		}
	}

	l.Submitted = append(l.Submitted, tx)
	l.txCounter++
	return fmt.Sprintf("stub-tx-%d", l.txCounter), nil
}
