package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WS subscription methods.
const (
	MethodSubscribe    = "graph_subscribe"
	MethodNotification = "graph_notification"
)

var errClientClosed = errors.New("ledger ws client closed")

// WSClientConfig configures the WebSocket subscription client.
type WSClientConfig struct {
	// ReconnectDelay is the first backoff step; it doubles up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	HandshakeTimeout  time.Duration
	PingInterval      time.Duration
	// ReadTimeout should exceed PingInterval so pongs keep the deadline moving.
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration
	// BufferSize is the per-subscription channel capacity. A full buffer
	// blocks the read loop rather than dropping events.
	BufferSize int
}

// DefaultWSConfig returns the client defaults.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
		BufferSize:        1024,
	}
}

func (c WSClientConfig) withDefaults() WSClientConfig {
	d := DefaultWSConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(d.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	return c
}

// subscription outlives reconnects; only its server-assigned id changes.
type subscription struct {
	id     int64
	filter GraphFilter
	events chan GraphEvent
}

// pendingSub waits for the server to confirm a subscribe request.
type pendingSub struct {
	confirm chan int64
	sub     *subscription
}

// WSClient is a Subscriber over a JSON-RPC WebSocket. It redials with
// exponential backoff after read failures and re-issues every live
// subscription on the new connection, keeping the caller's channel.
type WSClient struct {
	endpoint string
	cfg      WSClientConfig
	logger   *zap.Logger

	connMu sync.Mutex // guards conn and serializes writes
	conn   *websocket.Conn

	mu      sync.Mutex
	subs    map[int64]*subscription
	pending map[uint64]*pendingSub

	nextID     atomic.Uint64
	reconnects atomic.Int64
	closed     atomic.Bool
	done       chan struct{}
	wg         sync.WaitGroup
}

var _ Subscriber = (*WSClient)(nil)

// NewWSClient dials endpoint and starts the read and ping loops.
// A nil config uses DefaultWSConfig.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig, logger *zap.Logger) (*WSClient, error) {
	var cfg WSClientConfig
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint: endpoint,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		subs:     make(map[int64]*subscription),
		pending:  make(map[uint64]*pendingSub),
		done:     make(chan struct{}),
	}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Reconnects reports how many times the client has redialed.
func (c *WSClient) Reconnects() int64 { return c.reconnects.Load() }

func (c *WSClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial ledger ws: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.closed.Load() {
		_ = conn.Close()
		return errClientClosed
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	return nil
}

// SubscribeGraph subscribes to relationship events touching filter.Accounts.
// The returned channel is closed by Close.
func (c *WSClient) SubscribeGraph(ctx context.Context, filter GraphFilter) (<-chan GraphEvent, error) {
	sub := &subscription{
		filter: normalizeFilter(filter),
		events: make(chan GraphEvent, c.cfg.BufferSize),
	}
	if err := c.subscribe(ctx, sub); err != nil {
		return nil, err
	}
	return sub.events, nil
}

func normalizeFilter(f GraphFilter) GraphFilter {
	out := GraphFilter{Accounts: make([]string, len(f.Accounts))}
	for i, a := range f.Accounts {
		out.Accounts[i] = strings.ToLower(strings.TrimSpace(a))
	}
	return out
}

// subscribe sends graph_subscribe for sub and blocks until the server
// assigns an id. The confirmation handler registers sub under that id.
func (c *WSClient) subscribe(ctx context.Context, sub *subscription) error {
	if c.closed.Load() {
		return errClientClosed
	}

	params := map[string]interface{}{"all": true}
	if len(sub.filter.Accounts) > 0 {
		params = map[string]interface{}{"accounts": sub.filter.Accounts}
	}
	reqID := c.nextID.Add(1)
	p := &pendingSub{confirm: make(chan int64, 1), sub: sub}

	c.mu.Lock()
	c.pending[reqID] = p
	c.mu.Unlock()
	drop := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}

	err := c.write(wsRequest{JSONRPC: "2.0", ID: reqID, Method: MethodSubscribe, Params: []interface{}{params}})
	if err != nil {
		drop()
		return fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.cfg.SubscribeTimeout)
	defer timer.Stop()
	select {
	case _, ok := <-p.confirm:
		if !ok {
			return errClientClosed
		}
		return nil
	case <-timer.C:
		drop()
		return fmt.Errorf("subscription timeout after %s", c.cfg.SubscribeTimeout)
	case <-c.done:
		return errClientClosed
	case <-ctx.Done():
		drop()
		return ctx.Err()
	}
}

func (c *WSClient) write(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// Close stops the loops and closes every subscription channel. Safe to call twice.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	// No sender remains once the loops exit.
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		close(sub.events)
		delete(c.subs, id)
	}
	for id, p := range c.pending {
		close(p.confirm)
		delete(c.pending, id)
	}
	return nil
}

func (c *WSClient) readLoop() {
	defer c.wg.Done()

	for {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err == nil {
			c.handleMessage(message)
			continue
		}
		if c.closed.Load() {
			return
		}

		c.logger.Warn("ledger ws read failed", zap.Error(err))
		if !c.redial() {
			return
		}
		c.wg.Add(1)
		go c.resubscribeAll()
	}
}

// redial retries with capped exponential backoff until connected or closed.
func (c *WSClient) redial() bool {
	delay := c.cfg.ReconnectDelay
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-c.done:
			timer.Stop()
			return false
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.reconnects.Add(1)
			c.logger.Info("ledger ws reconnected", zap.Int("attempt", attempt))
			return true
		}
		if errors.Is(err, errClientClosed) {
			return false
		}

		c.logger.Warn("ledger ws reconnect failed",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		delay = min(delay*2, c.cfg.MaxReconnectDelay)
	}
}

// resubscribeAll re-issues every live subscription on the current connection.
func (c *WSClient) resubscribeAll() {
	defer c.wg.Done()

	c.mu.Lock()
	subs := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SubscribeTimeout)
		err := c.subscribe(ctx, sub)
		cancel()
		if err != nil {
			if errors.Is(err, errClientClosed) {
				return
			}
			c.logger.Warn("ledger ws resubscribe failed",
				zap.Strings("accounts", sub.filter.Accounts), zap.Error(err))
		}
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Debug("ledger ws: undecodable message", zap.Error(err))
		return
	}

	switch {
	case env.Method == MethodNotification && env.Params != nil:
		c.dispatch(env.Params)
	case env.Error != nil:
		// A subscribe waiting on this id will time out.
		c.logger.Warn("ledger ws error response",
			zap.Uint64("request_id", env.ID),
			zap.Int("code", env.Error.Code),
			zap.String("message", env.Error.Message))
	case env.ID != 0 && env.Result != nil:
		c.confirm(env.ID, *env.Result)
	}
}

// confirm registers the pending subscription under its new id, dropping
// the id it had on a previous connection.
func (c *WSClient) confirm(reqID uint64, subID int64) {
	c.mu.Lock()
	p, ok := c.pending[reqID]
	if ok {
		delete(c.pending, reqID)
		if p.sub.id != 0 {
			delete(c.subs, p.sub.id)
		}
		p.sub.id = subID
		c.subs[subID] = p.sub
	}
	c.mu.Unlock()

	if ok {
		p.confirm <- subID
	}
}

func (c *WSClient) dispatch(params *wsNotificationParams) {
	c.mu.Lock()
	sub, ok := c.subs[params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	row := params.Result
	ev := GraphEvent{
		Kind:      EventKind(row.Kind),
		Follower:  strings.ToLower(row.Follower),
		Target:    strings.ToLower(row.Target),
		Slot:      row.Slot,
		Signature: row.Signature,
	}
	select {
	case sub.events <- ev:
	case <-c.done:
	}
}

func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				deadline := time.Now().Add(c.cfg.WriteTimeout)
				if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					c.logger.Debug("ledger ws ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope decodes any server frame: a subscribe confirmation
// (id + result), an error (id + error) or a notification (method + params).
type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id,omitempty"`
	Result  *int64                `json:"result,omitempty"`
	Error   *RPCError             `json:"error,omitempty"`
	Method  string                `json:"method,omitempty"`
	Params  *wsNotificationParams `json:"params,omitempty"`
}

type wsNotificationParams struct {
	Subscription int64      `json:"subscription"`
	Result       wsGraphRow `json:"result"`
}

type wsGraphRow struct {
	Kind      string `json:"kind"`
	Follower  string `json:"follower"`
	Target    string `json:"target"`
	Slot      int64  `json:"slot"`
	Signature string `json:"signature"`
}
