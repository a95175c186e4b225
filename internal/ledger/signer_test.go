package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
)

const signerSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func TestNewSigner_InvalidSeed(t *testing.T) {
	owner := domain.MustAccount("0x00000000000000000000000000000000000000aa")

	_, err := NewSigner(owner, "zz")
	assert.ErrorIs(t, err, ErrInvalidSignerKey)

	_, err = NewSigner(owner, "abcd")
	assert.ErrorIs(t, err, ErrInvalidSignerKey)

	_, err = NewSigner("bad", signerSeed)
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestSigner_SignAndVerify(t *testing.T) {
	owner := domain.MustAccount("0x00000000000000000000000000000000000000AA")
	s, err := NewSigner(owner, "0x"+signerSeed)
	require.NoError(t, err)
	assert.Equal(t, owner, s.Account())

	target := domain.MustAccount("0x00000000000000000000000000000000000000bb")
	tx, err := s.Sign(MethodFollow, []domain.AccountID{target})
	require.NoError(t, err)

	assert.Equal(t, string(owner), tx.Account)
	assert.Equal(t, []string{string(target)}, tx.Targets)
	assert.Len(t, tx.ID, 64)
	require.NoError(t, VerifySignedTx(tx))

	// Nonces increase so ids differ between identical requests.
	tx2, err := s.Sign(MethodFollow, []domain.AccountID{target})
	require.NoError(t, err)
	assert.Greater(t, tx2.Nonce, tx.Nonce)
	assert.NotEqual(t, tx.ID, tx2.ID)
}

func TestVerifySignedTx_Tampered(t *testing.T) {
	s, err := NewSigner(domain.MustAccount("0x00000000000000000000000000000000000000aa"), signerSeed)
	require.NoError(t, err)

	tx, err := s.Sign(MethodFollowBatch, []domain.AccountID{
		domain.MustAccount("0x00000000000000000000000000000000000000bb"),
	})
	require.NoError(t, err)

	tx.Targets = append(tx.Targets, "0x00000000000000000000000000000000000000cc")
	assert.ErrorIs(t, VerifySignedTx(tx), ErrBadSignature)

	assert.ErrorIs(t, VerifySignedTx(nil), ErrBadSignature)
	assert.ErrorIs(t, VerifySignedTx(&SignedTx{PublicKey: "!!", Signature: "x"}), ErrBadSignature)
}

func TestNilSigner(t *testing.T) {
	var s *Signer
	_, err := s.Sign(MethodFollow, nil)
	assert.ErrorIs(t, err, ErrNoSigner)
}
