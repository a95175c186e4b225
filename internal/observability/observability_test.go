package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	logger, err = NewLogger("", "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))

	_, err = NewLogger("loud", "json")
	assert.Error(t, err)

	_, err = NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestNewMetrics_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.LedgerCallErrors.WithLabelValues("graph_followerCount").Inc()
	m.MutationItems.WithLabelValues("follow", "SUCCEEDED").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerCallErrors.WithLabelValues("graph_followerCount")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MutationItems.WithLabelValues("follow", "SUCCEEDED")))
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.LedgerCallErrors.WithLabelValues("graph_isFollowing"))
	RecordRPCCall("graph_isFollowing", 0.01, errors.New("boom"))
	RecordRPCCall("graph_isFollowing", 0.01, nil)
	after := testutil.ToFloat64(DefaultMetrics.LedgerCallErrors.WithLabelValues("graph_isFollowing"))
	assert.Equal(t, before+1, after)

	RecordBreakerState("ledger-rpc", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(DefaultMetrics.BreakerState.WithLabelValues("ledger-rpc")))

	fbBefore := testutil.ToFloat64(DefaultMetrics.FallbackActivations.WithLabelValues("unfollow"))
	RecordMutation("unfollow", map[string]int{"SUCCEEDED": 2, "FAILED": 1}, true)
	assert.Equal(t, fbBefore+1, testutil.ToFloat64(DefaultMetrics.FallbackActivations.WithLabelValues("unfollow")))
}
