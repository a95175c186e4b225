package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/api"
	"social-graph-lab/internal/domain"
	"social-graph-lab/internal/graph"
	"social-graph-lab/internal/history"
	"social-graph-lab/internal/ledger"
	"social-graph-lab/internal/ledger/stub"
	"social-graph-lab/internal/mutation"
	"social-graph-lab/internal/recommend"
	"social-graph-lab/internal/storage/memory"
)

const testSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"

func acct(n int) domain.AccountID {
	return domain.AccountID(fmt.Sprintf("0x%040x", n))
}

var (
	owner   = acct(0xa)
	fixedAt = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
)

type env struct {
	ledger *stub.Ledger
	server *httptest.Server
}

func newEnv(t *testing.T, writable bool) *env {
	t.Helper()
	l := stub.NewLedger()
	for _, n := range []int{0xb, 0xc, 0xd} {
		l.AddFollow(string(acct(n)), string(owner))
	}
	for _, n := range []int{0xc, 0xd, 0xe} {
		l.AddFollow(string(owner), string(acct(n)))
	}
	l.AddFollow(string(acct(0xc)), string(acct(0x100)))

	opts := ledger.RelationshipOptions{}
	if writable {
		signer, err := ledger.NewSigner(owner, testSeed)
		require.NoError(t, err)
		opts.Signer = signer
	}
	client := ledger.NewRelationshipClient(l, opts)

	store := memory.NewSnapshotStoreWithSeed(1)
	recorder := history.NewRecorder(store, nil)
	agg := graph.NewAggregator(graph.Options{
		Reader:   client,
		Recorder: recorder,
		Now:      func() time.Time { return fixedAt },
	})
	engine := recommend.NewEngine(recommend.Options{
		Aggregator: agg,
		Reader:     client,
		Pool:       store,
		Rand:       rand.New(rand.NewSource(1)),
	})

	routerOpts := api.Options{
		Aggregator:  agg,
		Recommender: engine,
		Stats:       recorder,
		Now:         func() time.Time { return fixedAt },
	}
	if writable {
		o, err := mutation.New(mutation.Options{Owner: owner, Writer: client, Refresher: agg})
		require.NoError(t, err)
		routerOpts.Mutator = o
	}

	srv := httptest.NewServer(api.NewRouter(routerOpts))
	t.Cleanup(srv.Close)
	return &env{ledger: l, server: srv}
}

func (e *env) get(t *testing.T, path string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *env) post(t *testing.T, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestGetRelationships(t *testing.T) {
	e := newEnv(t, false)

	var out api.RelationshipsResponse
	resp := e.get(t, "/v1/accounts/"+string(owner)+"/relationships", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(api.RequestIDHeader))

	assert.Equal(t, 2, out.MutualCount)
	assert.Equal(t, []string{string(acct(0xc)), string(acct(0xd))}, out.Mutual)
	assert.Equal(t, []string{string(acct(0xb))}, out.OneWayFollowers)
	assert.Equal(t, []string{string(acct(0xe))}, out.OneWayFollowing)
}

func TestGetRelationships_Errors(t *testing.T) {
	e := newEnv(t, false)

	var bad api.ErrorResponse
	resp := e.get(t, "/v1/accounts/not-hex/relationships", &bad)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, bad.Retryable)

	e.ledger.SetFailure(ledger.MethodGetFollowersByIndex, stub.ErrUnavailable)
	var unavailable api.ErrorResponse
	resp = e.get(t, "/v1/accounts/"+string(owner)+"/relationships", &unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.True(t, unavailable.Retryable)
}

func TestGetCounts(t *testing.T) {
	e := newEnv(t, false)
	var out api.CountsResponse
	resp := e.get(t, "/v1/accounts/"+string(owner)+"/counts", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint64(3), out.FollowerCount)
	assert.Equal(t, uint64(3), out.FollowingCount)
}

func TestGetRecommendations(t *testing.T) {
	e := newEnv(t, false)
	var out api.RecommendationsResponse
	resp := e.get(t, "/v1/accounts/"+string(owner)+"/recommendations?limit=5", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, out.Candidates)
	assert.Equal(t, string(acct(0x100)), out.Candidates[0].Account)
	assert.NotEmpty(t, out.Candidates[0].ReasonText)
	assert.NotEmpty(t, out.Candidates[0].DisplayName)

	resp = e.get(t, "/v1/accounts/"+string(owner)+"/recommendations?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetStats_RecordedByAggregation(t *testing.T) {
	e := newEnv(t, false)
	e.get(t, "/v1/accounts/"+string(owner)+"/relationships", nil)

	var out api.StatsResponse
	resp := e.get(t, "/v1/accounts/"+string(owner)+"/stats?days=7", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Stats, 1)
	assert.Equal(t, "2024-03-10", out.Stats[0].Date)
	assert.Equal(t, 2, out.Stats[0].MutualCount)
}

func TestFollow_ReadOnlyServer(t *testing.T) {
	e := newEnv(t, false)
	resp := e.post(t, "/v1/follow", api.MutationRequest{Accounts: []string{string(acct(0x100))}}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFollow_PartialSuccessIs207(t *testing.T) {
	e := newEnv(t, true)
	x, y, z := acct(0x10), acct(0x11), acct(0x12)
	e.ledger.SetFailure(ledger.MethodFollowBatch, fmt.Errorf("timeout"))
	e.ledger.FailTargets[y.Key()] = fmt.Errorf("connection reset")

	var out api.MutationResponse
	resp := e.post(t, "/v1/follow", api.MutationRequest{Accounts: []string{string(x), string(y), string(z)}}, &out)
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	assert.Equal(t, "2 of 3 succeeded", out.Summary)
	assert.True(t, out.UsedFallback)
	require.Len(t, out.Results, 3)
	assert.Equal(t, string(domain.ItemFailed), out.Results[1].Status)
	assert.NotEmpty(t, out.Results[1].Error)
}

func TestUnfollow_Success(t *testing.T) {
	e := newEnv(t, true)
	var out api.MutationResponse
	resp := e.post(t, "/v1/unfollow", api.MutationRequest{Accounts: []string{string(acct(0xe))}}, &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1 of 1 succeeded", out.Summary)

	ok, err := ledger.NewRelationshipClient(e.ledger, ledger.RelationshipOptions{}).
		IsFollowing(context.Background(), owner, acct(0xe))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollow_Validation(t *testing.T) {
	e := newEnv(t, true)
	resp := e.post(t, "/v1/follow", api.MutationRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := http.Post(e.server.URL+"/v1/follow", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, false)
	var health map[string]interface{}
	resp := e.get(t, "/health", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	resp = e.get(t, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
