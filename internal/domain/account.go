package domain

import (
	"fmt"
	"strings"
)

// AccountIDLength is the length of a canonical account identifier including the 0x prefix.
const AccountIDLength = 42

// AccountID identifies a participant in the social graph.
// Canonical form is lower-case hex with a 0x prefix.
type AccountID string

// NormalizeAccount lower-cases and validates a raw account identifier.
// Returns ErrInvalidAccount if the input is not 0x followed by 40 hex digits.
func NormalizeAccount(raw string) (AccountID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) != AccountIDLength || !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
	}
	for i := 2; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidAccount, raw)
		}
	}
	return AccountID(s), nil
}

// MustAccount is NormalizeAccount for constants and tests. Panics on invalid input.
func MustAccount(raw string) AccountID {
	a, err := NormalizeAccount(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// Key returns the lower-cased form used for set membership.
func (a AccountID) Key() string {
	return strings.ToLower(string(a))
}

// Equal compares two identifiers case-insensitively.
func (a AccountID) Equal(other AccountID) bool {
	return a.Key() == other.Key()
}

func (a AccountID) String() string {
	return string(a)
}

// AccountSet is an insertion-ordered set of accounts keyed case-insensitively.
type AccountSet struct {
	order []AccountID
	index map[string]struct{}
}

// NewAccountSet builds a set from ids, dropping duplicates and keeping first-seen order.
func NewAccountSet(ids ...AccountID) *AccountSet {
	s := &AccountSet{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id (lower-cased). Returns false if it was already present.
func (s *AccountSet) Add(id AccountID) bool {
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	key := id.Key()
	if _, ok := s.index[key]; ok {
		return false
	}
	s.index[key] = struct{}{}
	s.order = append(s.order, AccountID(key))
	return true
}

// Contains reports whether id is in the set.
func (s *AccountSet) Contains(id AccountID) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id.Key()]
	return ok
}

// Len returns the set cardinality.
func (s *AccountSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Slice returns a copy of the members in insertion order.
func (s *AccountSet) Slice() []AccountID {
	if s == nil {
		return nil
	}
	out := make([]AccountID, len(s.order))
	copy(out, s.order)
	return out
}

// Intersect returns members of s that are also in other, in s order.
func (s *AccountSet) Intersect(other *AccountSet) *AccountSet {
	out := NewAccountSet()
	for _, id := range s.order {
		if other.Contains(id) {
			out.Add(id)
		}
	}
	return out
}

// Difference returns members of s not in other, in s order.
func (s *AccountSet) Difference(other *AccountSet) *AccountSet {
	out := NewAccountSet()
	for _, id := range s.order {
		if !other.Contains(id) {
			out.Add(id)
		}
	}
	return out
}
