package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"social-graph-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 500 * time.Millisecond
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRateLimit   = 20 // requests per second
	DefaultRateBurst   = 10
)

// HTTPClient implements Service using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// Compile-time interface check.
var _ Service = (*HTTPClient)(nil)

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithRateLimit sets the outbound request rate. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *HTTPClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// BreakerConfig configures the circuit breaker wrapped around ledger calls.
type BreakerConfig struct {
	MaxRequests      uint32        // allowed in half-open state
	Interval         time.Duration // closed-state counter reset period
	Timeout          time.Duration // open-state duration before half-open
	FailureThreshold float64       // failure ratio that trips the breaker
	MinRequests      uint32        // requests needed before evaluating the ratio
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      10,
	}
}

// WithBreaker installs a circuit breaker. Transport failures count against it;
// JSON-RPC application errors do not.
func WithBreaker(cfg BreakerConfig) ClientOption {
	return func(c *HTTPClient) {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "ledger-rpc",
			MaxRequests: cfg.MaxRequests,
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= cfg.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				observability.RecordBreakerState(name, int(to))
			},
			IsSuccessful: func(err error) bool {
				var rpcErr *RPCError
				return err == nil || errors.As(err, &rpcErr) || errors.Is(err, context.Canceled)
			},
		})
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *HTTPClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewHTTPClient creates a new ledger RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateBurst),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// call performs a JSON-RPC call through the rate limiter and circuit breaker.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.callWithRetry(ctx, method, params, result)
		})
	} else {
		err = c.callWithRetry(ctx, method, params, result)
	}
	observability.RecordRPCCall(method, time.Since(start).Seconds(), err)
	return err
}

// callWithRetry retries transport failures, 429 and 5xx with exponential
// backoff. JSON-RPC errors and other 4xx responses are returned at once.
// Write methods get a single attempt: a retry after the request reached the
// ledger could double-submit.
func (c *HTTPClient) callWithRetry(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	attempts := c.maxRetries + 1
	if isWriteMethod(method) {
		attempts = 1
	}

	delay := c.retryDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}

		raw, wait, err := c.post(ctx, body)
		if err == nil {
			return decodeResult(raw, result)
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || errors.Is(err, errPermanent) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		if wait < delay {
			wait = delay
		}
		c.logger.Debug("retrying ledger call",
			zap.String("method", method),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay = min(time.Duration(float64(delay)*c.backoffMult), c.maxDelay)
	}
	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("%s failed after %d attempts: %w", method, attempts, lastErr)
}

// errPermanent marks HTTP responses that retrying cannot fix.
var errPermanent = errors.New("permanent http error")

// post sends one request. It returns the raw result on success, and on a 429
// the server's Retry-After hint.
func (c *HTTPClient) post(ctx context.Context, body []byte) (json.RawMessage, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: create request: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("rate limited (429)")
	case resp.StatusCode >= 500:
		return nil, 0, fmt.Errorf("ledger status %d: %s", resp.StatusCode, truncateBody(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, 0, fmt.Errorf("%w: status %d: %s", errPermanent, resp.StatusCode, truncateBody(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, 0, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, 0, rpcResp.Error
	}
	return rpcResp.Result, 0, nil
}

// maxResponseBytes caps a single response body; a full 50-entry page is far below it.
const maxResponseBytes = 8 << 20

func decodeResult(raw json.RawMessage, result interface{}) error {
	if result == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("%w: unmarshal result: %v", errPermanent, err)
	}
	return nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncateBody(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

func isWriteMethod(method string) bool {
	switch method {
	case MethodFollow, MethodUnfollow, MethodFollowBatch, MethodUnfollowBatch:
		return true
	}
	return false
}

// FollowerCount returns the number of followers of account.
func (c *HTTPClient) FollowerCount(ctx context.Context, account string) (uint64, error) {
	var result uint64
	if err := c.call(ctx, MethodFollowerCount, []interface{}{account}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// FollowingCount returns the number of accounts followed by account.
func (c *HTTPClient) FollowingCount(ctx context.Context, account string) (uint64, error) {
	var result uint64
	if err := c.call(ctx, MethodFollowingCount, []interface{}{account}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

// GetFollowersByIndex returns followers of account in [start, end).
func (c *HTTPClient) GetFollowersByIndex(ctx context.Context, account string, start, end uint64) ([]string, error) {
	var result []string
	if err := c.call(ctx, MethodGetFollowersByIndex, []interface{}{account, start, end}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetFollowsByIndex returns accounts followed by account in [start, end).
func (c *HTTPClient) GetFollowsByIndex(ctx context.Context, account string, start, end uint64) ([]string, error) {
	var result []string
	if err := c.call(ctx, MethodGetFollowsByIndex, []interface{}{account, start, end}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// IsFollowing reports whether follower follows target.
func (c *HTTPClient) IsFollowing(ctx context.Context, follower, target string) (bool, error) {
	var result bool
	if err := c.call(ctx, MethodIsFollowing, []interface{}{follower, target}, &result); err != nil {
		return false, err
	}
	return result, nil
}

// Follow submits a signed single follow.
func (c *HTTPClient) Follow(ctx context.Context, tx *SignedTx) (string, error) {
	return c.submit(ctx, MethodFollow, tx)
}

// Unfollow submits a signed single unfollow.
func (c *HTTPClient) Unfollow(ctx context.Context, tx *SignedTx) (string, error) {
	return c.submit(ctx, MethodUnfollow, tx)
}

// FollowBatch submits a signed batch follow.
func (c *HTTPClient) FollowBatch(ctx context.Context, tx *SignedTx) (string, error) {
	return c.submit(ctx, MethodFollowBatch, tx)
}

// UnfollowBatch submits a signed batch unfollow.
func (c *HTTPClient) UnfollowBatch(ctx context.Context, tx *SignedTx) (string, error) {
	return c.submit(ctx, MethodUnfollowBatch, tx)
}

// submitResult is the raw RPC response for write methods.
type submitResult struct {
	Signature string `json:"signature"`
}

func (c *HTTPClient) submit(ctx context.Context, method string, tx *SignedTx) (string, error) {
	if tx == nil {
		return "", fmt.Errorf("%s: nil transaction", method)
	}
	var result submitResult
	if err := c.call(ctx, method, []interface{}{tx}, &result); err != nil {
		return "", err
	}
	if result.Signature == "" {
		// Ledger acknowledged without echoing; the signed envelope signature identifies the tx.
		return tx.Signature, nil
	}
	return result.Signature, nil
}
