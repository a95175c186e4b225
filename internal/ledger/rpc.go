package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Service is the social-graph contract exposed by the ledger.
// Range reads return the contiguous index range [start, end) clamped to the live count.
type Service interface {
	// FollowerCount returns the number of accounts following account.
	FollowerCount(ctx context.Context, account string) (uint64, error)

	// FollowingCount returns the number of accounts account follows.
	FollowingCount(ctx context.Context, account string) (uint64, error)

	// GetFollowersByIndex returns followers of account in index range [start, end).
	GetFollowersByIndex(ctx context.Context, account string, start, end uint64) ([]string, error)

	// GetFollowsByIndex returns accounts followed by account in index range [start, end).
	GetFollowsByIndex(ctx context.Context, account string, start, end uint64) ([]string, error)

	// IsFollowing reports whether follower follows target.
	IsFollowing(ctx context.Context, follower, target string) (bool, error)

	// Follow submits a signed single follow. Returns the transaction signature.
	Follow(ctx context.Context, tx *SignedTx) (string, error)

	// Unfollow submits a signed single unfollow.
	Unfollow(ctx context.Context, tx *SignedTx) (string, error)

	// FollowBatch submits a signed follow for up to MaxBatchSize targets.
	FollowBatch(ctx context.Context, tx *SignedTx) (string, error)

	// UnfollowBatch submits a signed unfollow for up to MaxBatchSize targets.
	UnfollowBatch(ctx context.Context, tx *SignedTx) (string, error)
}

// Ledger RPC methods.
const (
	MethodFollowerCount       = "graph_followerCount"
	MethodFollowingCount      = "graph_followingCount"
	MethodGetFollowersByIndex = "graph_getFollowersByIndex"
	MethodGetFollowsByIndex   = "graph_getFollowsByIndex"
	MethodIsFollowing         = "graph_isFollowing"
	MethodFollow              = "graph_follow"
	MethodUnfollow            = "graph_unfollow"
	MethodFollowBatch         = "graph_followBatch"
	MethodUnfollowBatch       = "graph_unfollowBatch"
)

// Application error codes returned by the ledger for write requests.
const (
	CodeUnauthorized     = -32001 // signer is not allowed to act for the account
	CodeInvalidSignature = -32002
	CodeBatchTooLarge    = -32003
	CodeAlreadyApplied   = -32004 // follow of an already followed account, etc.
)

// RPCError represents a JSON-RPC 2.0 error returned by the ledger.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsRejection reports whether err is a ledger-side refusal of a write
// (permission or signature), as opposed to an in-flight failure.
func IsRejection(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.Code {
	case CodeUnauthorized, CodeInvalidSignature:
		return true
	}
	return false
}

// IsAlreadyApplied reports whether the ledger refused a write because the
// edge is already in the requested state.
func IsAlreadyApplied(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == CodeAlreadyApplied
}
