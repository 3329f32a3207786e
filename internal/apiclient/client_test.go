// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package apiclient

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/negscan/internal/httpcache"
	"github.com/seqlab/negscan/pkg/types"
)

func testConfig() types.ClientConfig {
	cfg := types.DefaultClientConfig()
	cfg.Timeout = 5 * time.Second
	cfg.Retries = 2
	return cfg
}

// newTestClient returns a client with sleeps recorded instead of taken.
func newTestClient(cfg types.ClientConfig, store httpcache.Store) (*Client, *[]time.Duration) {
	c := New(cfg, store)
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func TestGetCachesResponse(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	store := httpcache.NewMemoryStore()
	client, _ := newTestClient(testConfig(), store)

	first, err := client.Get(server.URL, nil, map[string]string{"q": "x"})
	require.NoError(t, err)
	assert.Equal(t, 200, first.StatusCode)

	second, err := client.Get(server.URL, nil, map[string]string{"q": "x"})
	require.NoError(t, err)
	assert.Equal(t, first.Text, second.Text)
	assert.True(t, second.IsJSON())

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "second call must be served from cache")
}

func TestGetCacheRespectsTTL(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.CacheTTLHours = 1
	store := httpcache.NewMemoryStore()
	client, _ := newTestClient(cfg, store)

	current := time.Now()
	client.now = func() time.Time { return current }

	_, err := client.Get(server.URL, nil, nil)
	require.NoError(t, err)

	// within TTL: served from cache
	current = current.Add(30 * time.Minute)
	_, err = client.Get(server.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// expired: refetched
	current = current.Add(45 * time.Minute)
	_, err = client.Get(server.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestGetRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n <= 2 {
			http.Error(w, "upstream sad", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer server.Close()

	client, sleeps := newTestClient(testConfig(), nil)
	resp, err := client.Get(server.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	require.Len(t, *sleeps, 2)

	// exponential schedule with linear jitter: 1*2^0+0.25, 1*2^1+0.5
	assert.Equal(t, 1250*time.Millisecond, (*sleeps)[0])
	assert.Equal(t, 2500*time.Millisecond, (*sleeps)[1])
}

func TestGetRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "still down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, sleeps := newTestClient(testConfig(), nil)
	_, err := client.Get(server.URL, nil, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Len(t, *sleeps, 2)
}

func TestGetRateLimitHonorsRetryAfter(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "3")
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, sleeps := newTestClient(testConfig(), nil)
	resp, err := client.Get(server.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	require.Len(t, *sleeps, 1)
	// Retry-After overrides the exponential delay; jitter still applies.
	assert.Equal(t, 3250*time.Millisecond, (*sleeps)[0])
}

func TestGetClientErrorIsTerminal(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "no such gene", http.StatusNotFound)
	}))
	defer server.Close()

	client, sleeps := newTestClient(testConfig(), nil)
	_, err := client.Get(server.URL, nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "no such gene")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "4xx must not be retried")
	assert.Empty(t, *sleeps)
}

func TestErrorBodyTruncated(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write(long)
	}))
	defer server.Close()

	client, _ := newTestClient(testConfig(), nil)
	_, err := client.Get(server.URL, nil, nil)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Len(t, apiErr.Message, errorBodyLimit)
}

func TestOfflineCacheMissFails(t *testing.T) {
	cfg := testConfig()
	cfg.Offline = true
	client, _ := newTestClient(cfg, httpcache.NewMemoryStore())

	_, err := client.Get("https://rest.ensembl.org/lookup/id/ENSG1", nil, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "offline mode: cache miss")
}

func TestOfflineCacheHitSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("cached body"))
	}))

	store := httpcache.NewMemoryStore()
	cfg := testConfig()
	client, _ := newTestClient(cfg, store)
	_, err := client.Get(server.URL, nil, nil)
	require.NoError(t, err)
	server.Close()

	cfg.Offline = true
	offline, _ := newTestClient(cfg, store)
	resp, err := offline.Get(server.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "cached body", resp.Text)
}

func TestNoCacheOptionBypassesStore(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	store := httpcache.NewMemoryStore()
	client, _ := newTestClient(testConfig(), store)

	_, err := client.Get(server.URL, nil, nil, NoCache())
	require.NoError(t, err)
	_, err = client.Get(server.URL, nil, nil, NoCache())
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Empty(t, store.Keys())
}

func TestOfflineReadsCacheForNoCacheCalls(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sequence data"))
	}))

	store := httpcache.NewMemoryStore()
	online, _ := newTestClient(testConfig(), store)
	_, err := online.Get(server.URL, nil, nil)
	require.NoError(t, err)
	server.Close()

	cfg := testConfig()
	cfg.Offline = true
	offline, _ := newTestClient(cfg, store)
	resp, err := offline.Get(server.URL, nil, nil, NoCache())
	require.NoError(t, err)
	assert.Equal(t, "sequence data", resp.Text)
}

func TestPostSendsJSONBody(t *testing.T) {
	var gotBody string
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"jobId":"abc"}`))
	}))
	defer server.Close()

	client, _ := newTestClient(testConfig(), nil)
	resp, err := client.Post(server.URL,
		map[string]string{"Content-Type": "application/json"},
		map[string]any{"ids": "P04637"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ids":"P04637"}`, gotBody)
	assert.Equal(t, "application/json", gotContentType)

	var decoded struct {
		JobID string `json:"jobId"`
	}
	require.NoError(t, resp.JSON(&decoded))
	assert.Equal(t, "abc", decoded.JobID)
}

func TestUserAgentHeader(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client, _ := newTestClient(testConfig(), nil)
	_, err := client.Get(server.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.DefaultUserAgent, gotUA)
}
