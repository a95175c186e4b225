package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/idhash"
)

// Signer errors.
var (
	ErrNoSigner         = errors.New("no signer configured")
	ErrInvalidSignerKey = errors.New("invalid signer key")
	ErrBadSignature     = errors.New("signature verification failed")
)

// SignedTx is the envelope submitted for every relationship write.
type SignedTx struct {
	ID        string   `json:"id"`        // deterministic mutation id
	Account   string   `json:"account"`   // account acting (the follower)
	PublicKey string   `json:"publicKey"` // base58 ed25519 public key
	Method    string   `json:"method"`
	Targets   []string `json:"targets"`
	Nonce     uint64   `json:"nonce"`
	Signature string   `json:"signature"` // base58 ed25519 signature over signingPayload
}

// Signer signs relationship writes on behalf of one account.
type Signer struct {
	account domain.AccountID
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	nonce   atomic.Uint64
}

// NewSigner builds a signer from a hex-encoded 32-byte ed25519 seed.
func NewSigner(account domain.AccountID, seedHex string) (*Signer, error) {
	acct, err := domain.NormalizeAccount(string(account))
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: decode seed: %v", ErrInvalidSignerKey, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes, got %d", ErrInvalidSignerKey, ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	if !isOnCurve(pub) {
		return nil, fmt.Errorf("%w: public key is not a curve point", ErrInvalidSignerKey)
	}

	s := &Signer{account: acct, priv: priv, pub: pub}
	s.nonce.Store(uint64(time.Now().UnixNano()))
	return s, nil
}

// Account returns the account this signer acts for.
func (s *Signer) Account() domain.AccountID {
	return s.account
}

// PublicKey returns the base58-encoded public key.
func (s *Signer) PublicKey() string {
	return base58.Encode(s.pub)
}

// Sign builds and signs an envelope for method over targets.
func (s *Signer) Sign(method string, targets []domain.AccountID) (*SignedTx, error) {
	if s == nil {
		return nil, ErrNoSigner
	}
	raw := make([]string, len(targets))
	for i, t := range targets {
		raw[i] = t.Key()
	}

	nonce := s.nonce.Add(1)
	tx := &SignedTx{
		ID:        idhash.ComputeMutationID(string(s.account), method, raw, nonce),
		Account:   string(s.account),
		PublicKey: s.PublicKey(),
		Method:    method,
		Targets:   raw,
		Nonce:     nonce,
	}
	sig := ed25519.Sign(s.priv, signingPayload(tx))
	tx.Signature = base58.Encode(sig)
	return tx, nil
}

// VerifySignedTx checks the envelope signature against its embedded public key.
func VerifySignedTx(tx *SignedTx) error {
	if tx == nil {
		return ErrBadSignature
	}
	pub, err := base58.Decode(tx.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize || !isOnCurve(pub) {
		return fmt.Errorf("%w: malformed public key", ErrBadSignature)
	}
	sig, err := base58.Decode(tx.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	if !ed25519.Verify(pub, signingPayload(tx), sig) {
		return ErrBadSignature
	}
	return nil
}

// signingPayload is the canonical byte string covered by the signature.
func signingPayload(tx *SignedTx) []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%d|%s",
		tx.ID, tx.Account, tx.Method, tx.Nonce, strings.Join(tx.Targets, ",")))
}

// isOnCurve checks whether the 32-byte key decodes to a valid edwards25519 point.
func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
