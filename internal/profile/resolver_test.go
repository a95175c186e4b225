package profile

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-graph-lab/internal/domain"
)

const known = "0x00000000000000000000000000000000000000aa"

func TestHTTPResolver_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profiles/" + known:
			json.NewEncoder(w).Encode(map[string]interface{}{
				"name":        "Alice",
				"description": "",
				"image":       "https://img/a.png",
				"tags":        []string{"dev"},
			})
		case "/profiles/0x00000000000000000000000000000000000000bb":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	r := NewHTTPResolver(server.URL+"/", nil, nil)
	ctx := context.Background()

	p, err := r.Resolve(ctx, domain.AccountID("0x"+strings.ToUpper(known[2:])))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Alice", *p.Name)
	assert.Nil(t, p.Description)
	assert.Equal(t, "https://img/a.png", *p.AvatarURL)
	assert.Nil(t, p.BackgroundURL)
	assert.Equal(t, []string{"dev"}, p.Tags)

	p, err = r.Resolve(ctx, "0x00000000000000000000000000000000000000cc")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = r.Resolve(ctx, "0x00000000000000000000000000000000000000bb")
	assert.ErrorIs(t, err, domain.ErrMetadataUnavailable)
}

func TestHTTPResolver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	r := NewHTTPResolver(url, &http.Client{Timeout: time.Second}, nil)
	_, err := r.Resolve(context.Background(), known)
	assert.ErrorIs(t, err, domain.ErrMetadataUnavailable)
}

type countingResolver struct {
	calls atomic.Int32
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, _ domain.AccountID) (*domain.ProfileMetadata, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	name := "n"
	return &domain.ProfileMetadata{Name: &name}, nil
}

func TestCachedResolver(t *testing.T) {
	next := &countingResolver{}
	cache := NewCachedResolver(next, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := cache.Resolve(ctx, known)
	require.NoError(t, err)
	_, err = cache.Resolve(ctx, "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, cache.Purge())
	_, err = cache.Resolve(ctx, known)
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachedResolver_FailuresNotCached(t *testing.T) {
	next := &countingResolver{err: errors.New("down")}
	cache := NewCachedResolver(next, 0)

	ctx := context.Background()
	_, err := cache.Resolve(ctx, known)
	require.Error(t, err)
	_, err = cache.Resolve(ctx, known)
	require.Error(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}
