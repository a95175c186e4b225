package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// idleServer accepts a connection and drains it until the client leaves.
func idleServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func confirmFrame(id uint64, sub int64) map[string]interface{} {
	return map[string]interface{}{"jsonrpc": "2.0", "id": id, "result": sub}
}

func notificationFrame(sub, slot int64, sig string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  MethodNotification,
		"params": map[string]interface{}{
			"subscription": sub,
			"result": map[string]interface{}{
				"kind":      "follow",
				"follower":  "0x00000000000000000000000000000000000000b1",
				"target":    "0x00000000000000000000000000000000000000AA",
				"slot":      slot,
				"signature": sig,
			},
		},
	}
}

// readSubscribe reads one graph_subscribe request and returns its id.
func readSubscribe(c *websocket.Conn) (uint64, error) {
	_, msg, err := c.ReadMessage()
	if err != nil {
		return 0, err
	}
	var req struct {
		ID     uint64 `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(msg, &req); err != nil {
		return 0, err
	}
	return req.ID, nil
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSClient_Connect(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	require.NoError(t, err)
	defer client.Close()

	assert.False(t, client.closed.Load())
}

func TestWSClient_SubscribeGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req struct {
			ID     uint64                   `json:"id"`
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
		}
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != MethodSubscribe {
			t.Errorf("expected %s, got %s", MethodSubscribe, req.Method)
		}
		if len(req.Params) != 1 || req.Params[0]["accounts"] == nil {
			t.Errorf("expected accounts filter, got %v", req.Params)
		}

		c.WriteJSON(confirmFrame(req.ID, 7))
		time.Sleep(50 * time.Millisecond)
		c.WriteJSON(notificationFrame(7, 100, "sig1"))

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeGraph(ctx, GraphFilter{
		Accounts: []string{"0x00000000000000000000000000000000000000aa"},
	})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, EventFollow, ev.Kind)
		assert.Equal(t, int64(100), ev.Slot)
		assert.Equal(t, "sig1", ev.Signature)
		assert.Equal(t, "0x00000000000000000000000000000000000000aa", ev.Target)
		assert.True(t, ev.Touches("0x00000000000000000000000000000000000000AA"))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_Close(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	client, err := NewWSClient(context.Background(), wsURL(server), nil, nil)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.True(t, client.closed.Load())

	// Double close should be safe
	assert.NoError(t, client.Close())
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	require.NoError(t, err)
	client.Close()

	_, err = client.SubscribeGraph(ctx, GraphFilter{})
	assert.Error(t, err)
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	server := idleServer(t)
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.SubscribeTimeout = 100 * time.Millisecond

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), &cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.SubscribeGraph(ctx, GraphFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestWSClient_ResubscribesAfterDrop(t *testing.T) {
	var conns atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		n := conns.Add(1)
		id, err := readSubscribe(c)
		if err != nil {
			return
		}
		if n == 1 {
			// Confirm, then drop the connection.
			c.WriteJSON(confirmFrame(id, 1))
			time.Sleep(20 * time.Millisecond)
			return
		}
		c.WriteJSON(confirmFrame(id, 2))
		time.Sleep(20 * time.Millisecond)
		c.WriteJSON(notificationFrame(2, 300, "after-reconnect"))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultWSConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.MaxReconnectDelay = 50 * time.Millisecond

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), &cfg, nil)
	require.NoError(t, err)
	defer client.Close()

	ch, err := client.SubscribeGraph(ctx, GraphFilter{Accounts: []string{"0x00000000000000000000000000000000000000AA"}})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, int64(300), ev.Slot)
		assert.Equal(t, "after-reconnect", ev.Signature)
	case <-time.After(3 * time.Second):
		t.Fatal("no event after reconnect")
	}
	assert.GreaterOrEqual(t, client.Reconnects(), int64(1))
}

func TestWSClient_CloseClosesSubscriptionChannels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		id, err := readSubscribe(c)
		if err != nil {
			return
		}
		c.WriteJSON(confirmFrame(id, 5))
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client, err := NewWSClient(ctx, wsURL(server), nil, nil)
	require.NoError(t, err)

	ch, err := client.SubscribeGraph(ctx, GraphFilter{})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, open := <-ch
	assert.False(t, open)
}
