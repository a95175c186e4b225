package mutation_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/graph"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/ledger/stub"
	"social-graph-lab/internal/mutation"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func acct(n int) domain.AccountID {
	return domain.AccountID(fmt.Sprintf("0x%040x", n))
}

var owner = acct(1)

type countingRefresher struct {
	calls int
}

func (r *countingRefresher) ComputeRelationships(context.Context, domain.AccountID) (*domain.RelationshipSnapshot, error) {
	r.calls++
	return nil, nil
}

func setup(t *testing.T, l *stub.Ledger, verify bool) (*mutation.Orchestrator, *ledger.RelationshipClient, *countingRefresher) {
	t.Helper()
	signer, err := ledger.NewSigner(owner, testSeed)
	require.NoError(t, err)
	client := ledger.NewRelationshipClient(l, ledger.RelationshipOptions{Signer: signer})
	ref := &countingRefresher{}
	o, err := mutation.New(mutation.Options{
		Owner:              owner,
		Writer:             client,
		Refresher:          ref,
		VerifyBeforeMutate: verify,
	})
	require.NoError(t, err)
	return o, client, ref
}

func TestApply_BatchFailureFallsBackToSingles(t *testing.T) {
	x, y, z := acct(0x10), acct(0x11), acct(0x12)
	l := stub.NewLedger()
	l.SetFailure(ledger.MethodFollowBatch, errors.New("request timeout"))
	l.FailTargets[y.Key()] = errors.New("connection reset")

	o, client, ref := setup(t, l, false)
	rep, err := o.Apply(context.Background(), []domain.AccountID{x, y, z}, domain.ModeFollow)
	require.NoError(t, err)

	assert.True(t, rep.UsedFallback)
	assert.Equal(t, "2 of 3 succeeded", rep.Summary())
	assert.Equal(t, []domain.AccountID{x, z}, rep.ByStatus(domain.ItemSucceeded))
	assert.Equal(t, []domain.AccountID{y}, rep.ByStatus(domain.ItemFailed))
	assert.False(t, rep.Complete())
	assert.ErrorIs(t, rep.Results[1].Err, domain.ErrMutationFailed)
	require.Error(t, rep.Err())
	assert.Contains(t, rep.Err().Error(), string(y))
	assert.NotEmpty(t, rep.MutationID)

	following, err := client.AllFollowing(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, []domain.AccountID{x, z}, following)
	assert.Equal(t, 1, ref.calls)
}

func TestApply_BatchSuccess(t *testing.T) {
	l := stub.NewLedger()
	o, client, _ := setup(t, l, false)

	targets := []domain.AccountID{acct(0x10), acct(0x11), acct(0x10)}
	rep, err := o.Apply(context.Background(), targets, domain.ModeFollow)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Requested)
	assert.Equal(t, 2, rep.Succeeded)
	assert.False(t, rep.UsedFallback)
	assert.NotEmpty(t, rep.BatchHandle)
	assert.Equal(t, 1, l.CallCount(ledger.MethodFollowBatch))
	assert.Zero(t, l.CallCount(ledger.MethodFollow))

	n, err := client.FollowingCount(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestApply_SingleAccount(t *testing.T) {
	l := stub.NewLedger()
	l.AddFollow(string(owner), string(acct(0x10)))
	o, _, _ := setup(t, l, false)

	rep, err := o.Apply(context.Background(), []domain.AccountID{acct(0x10)}, domain.ModeUnfollow)
	require.NoError(t, err)
	assert.Equal(t, "1 of 1 succeeded", rep.Summary())
	assert.Equal(t, 1, l.CallCount(ledger.MethodUnfollow))
	assert.Zero(t, l.CallCount(ledger.MethodUnfollowBatch))
	assert.NotEmpty(t, rep.Results[0].TxHandle)
}

func TestApply_TruncatesAndReportsTail(t *testing.T) {
	l := stub.NewLedger()
	o, _, _ := setup(t, l, false)

	targets := make([]domain.AccountID, 60)
	for i := range targets {
		targets[i] = acct(0x1000 + i)
	}
	rep, err := o.Apply(context.Background(), targets, domain.ModeFollow)
	require.NoError(t, err)

	assert.Equal(t, 60, rep.Requested)
	assert.Equal(t, 50, rep.Succeeded)
	assert.Equal(t, targets[50:], rep.ByStatus(domain.ItemNotProcessed))
	assert.Equal(t, "50 of 60 succeeded", rep.Summary())
	assert.False(t, rep.Complete())
}

func TestApply_RejectedBatchIsNotRetried(t *testing.T) {
	l := stub.NewLedger()
	l.SetFailure(ledger.MethodFollowBatch, &ledger.RPCError{Code: ledger.CodeUnauthorized, Message: "denied"})
	o, _, ref := setup(t, l, false)

	rep, err := o.Apply(context.Background(), []domain.AccountID{acct(0x10), acct(0x11)}, domain.ModeFollow)
	require.NoError(t, err)

	assert.False(t, rep.UsedFallback)
	assert.Zero(t, rep.Succeeded)
	assert.Zero(t, l.CallCount(ledger.MethodFollow))
	for _, res := range rep.Results {
		assert.ErrorIs(t, res.Err, domain.ErrMutationRejected)
	}
	assert.Zero(t, ref.calls)
}

func TestApply_AlreadyAppliedBatchFallsBackAndSkips(t *testing.T) {
	x, y, z := acct(0x10), acct(0x11), acct(0x12)
	l := stub.NewLedger()
	l.RejectRedundant = true
	l.AddFollow(string(owner), string(x))
	o, _, ref := setup(t, l, false)

	rep, err := o.Apply(context.Background(), []domain.AccountID{x, y, z}, domain.ModeFollow)
	require.NoError(t, err)

	assert.True(t, rep.UsedFallback)
	assert.Equal(t, 1, l.CallCount(ledger.MethodFollowBatch))
	assert.Equal(t, 3, l.CallCount(ledger.MethodFollow))
	assert.Equal(t, []domain.AccountID{x}, rep.ByStatus(domain.ItemSkipped))
	assert.Equal(t, []domain.AccountID{y, z}, rep.ByStatus(domain.ItemSucceeded))
	assert.Equal(t, "3 of 3 succeeded", rep.Summary())
	assert.True(t, rep.Complete())
	assert.Equal(t, 1, ref.calls)
}

func TestApply_AlreadyAppliedSingleIsSkipped(t *testing.T) {
	l := stub.NewLedger()
	l.RejectRedundant = true
	o, _, ref := setup(t, l, false)

	rep, err := o.Apply(context.Background(), []domain.AccountID{acct(0x10)}, domain.ModeUnfollow)
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountID{acct(0x10)}, rep.ByStatus(domain.ItemSkipped))
	assert.NoError(t, rep.Results[0].Err)
	assert.Equal(t, "1 of 1 succeeded", rep.Summary())
	assert.Zero(t, ref.calls)
}

func TestApply_OversizedBatchFallsBack(t *testing.T) {
	l := stub.NewLedger()
	l.SetFailure(ledger.MethodUnfollowBatch, &ledger.RPCError{Code: ledger.CodeBatchTooLarge, Message: "too many"})
	l.AddFollow(string(owner), string(acct(0x10)))
	l.AddFollow(string(owner), string(acct(0x11)))
	o, _, _ := setup(t, l, false)

	rep, err := o.Apply(context.Background(), []domain.AccountID{acct(0x10), acct(0x11)}, domain.ModeUnfollow)
	require.NoError(t, err)

	assert.True(t, rep.UsedFallback)
	assert.Equal(t, 2, l.CallCount(ledger.MethodUnfollow))
	assert.True(t, rep.Complete())
}

func TestApply_VerifyBeforeMutateSkips(t *testing.T) {
	l := stub.NewLedger()
	l.AddFollow(string(owner), string(acct(0x10)))
	o, _, _ := setup(t, l, true)

	rep, err := o.Apply(context.Background(), []domain.AccountID{acct(0x10), acct(0x11)}, domain.ModeFollow)
	require.NoError(t, err)

	assert.Equal(t, []domain.AccountID{acct(0x10)}, rep.ByStatus(domain.ItemSkipped))
	assert.Equal(t, []domain.AccountID{acct(0x11)}, rep.ByStatus(domain.ItemSucceeded))
	// Only one account remained, so no batch was needed.
	assert.Equal(t, 1, l.CallCount(ledger.MethodFollow))
	assert.Zero(t, l.CallCount(ledger.MethodFollowBatch))
	assert.True(t, rep.Complete())
}

func TestApply_InvalidInput(t *testing.T) {
	o, _, _ := setup(t, stub.NewLedger(), false)

	_, err := o.Apply(context.Background(), nil, domain.ModeFollow)
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = o.Apply(context.Background(), []domain.AccountID{acct(2)}, "block")
	assert.Error(t, err)

	rep, err := o.Apply(context.Background(), []domain.AccountID{"garbage", owner, acct(2)}, domain.ModeFollow)
	require.NoError(t, err)
	assert.Equal(t, "1 of 3 succeeded", rep.Summary())
	assert.ErrorIs(t, rep.Results[0].Err, domain.ErrInvalidAccount)
	assert.ErrorIs(t, rep.Results[1].Err, domain.ErrInvalidAccount)
}

func TestApply_RefresherRecordsHistory(t *testing.T) {
	l := stub.NewLedger()
	signer, err := ledger.NewSigner(owner, testSeed)
	require.NoError(t, err)
	client := ledger.NewRelationshipClient(l, ledger.RelationshipOptions{Signer: signer})

	var snapshots []*domain.RelationshipSnapshot
	agg := graph.NewAggregator(graph.Options{Reader: client, Recorder: recorderFunc(func(s *domain.RelationshipSnapshot) {
		snapshots = append(snapshots, s)
	})})
	o, err := mutation.New(mutation.Options{Owner: owner, Writer: client, Refresher: agg})
	require.NoError(t, err)

	_, err = o.Apply(context.Background(), []domain.AccountID{acct(5)}, domain.ModeFollow)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, 1, snapshots[0].FollowingCount())
}

type recorderFunc func(*domain.RelationshipSnapshot)

func (f recorderFunc) Record(_ context.Context, s *domain.RelationshipSnapshot) { f(s) }

func TestNew_Validation(t *testing.T) {
	_, err := mutation.New(mutation.Options{Owner: "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = mutation.New(mutation.Options{Owner: owner})
	assert.Error(t, err)
}
