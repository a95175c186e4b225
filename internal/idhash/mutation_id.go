package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeMutationID computes a deterministic mutation id using SHA256.
// Formula: SHA256(account|method|target1,target2,...|nonce)
// Targets are hashed in the given order. Returns hex-encoded hash (64 characters).
func ComputeMutationID(
	account string,
	method string,
	targets []string,
	nonce uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		strings.ToLower(account),
		method,
		strings.ToLower(strings.Join(targets, ",")),
		nonce,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeRequestID computes a deterministic id for a caller-level follow/unfollow
// request, independent of signing nonces.
// Formula: SHA256(account|mode|target1,target2,...)
func ComputeRequestID(account, mode string, targets []string) string {
	data := fmt.Sprintf("%s|%s|%s",
		strings.ToLower(account),
		mode,
		strings.ToLower(strings.Join(targets, ",")),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
