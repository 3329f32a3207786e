// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package apiclient wraps outbound HTTP with response caching, bounded
// retry with exponential backoff, and an offline mode. All downstream
// stages share one Client and one cache store.
package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seqlab/negscan/internal/httpcache"
	"github.com/seqlab/negscan/pkg/types"
)

// errorBodyLimit caps how much of an error response body is attached
// to an APIError for diagnostics.
const errorBodyLimit = 500

// APIError is the transport/API failure kind: network errors after
// exhausting retries, terminal 4xx responses, rate limits that never
// cleared, and offline cache misses.
type APIError struct {
	URL        string
	StatusCode int // 0 for network-level failures
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request failed (%d) for %s: %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("request failed for %s: %s", e.URL, e.Message)
}

// Response is the uniform result of a Get or Post. Text always holds
// the raw body; JSON decoding is attempted lazily by the caller.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Text       string
}

// IsJSON reports whether the response looks like a structured payload,
// judged by content type or leading character.
func (r *Response) IsJSON() bool {
	ctype := strings.ToLower(r.Header.Get("Content-Type"))
	if strings.Contains(ctype, "json") {
		return true
	}
	trimmed := strings.TrimSpace(r.Text)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// JSON decodes the body into v. Callers that can proceed without a
// structured body check IsJSON first and ignore decode errors.
func (r *Response) JSON(v any) error {
	return json.Unmarshal([]byte(r.Text), v)
}

// Option adjusts a single call.
type Option func(*callOptions)

type callOptions struct {
	noCache bool
}

// NoCache disables cache read and write for one call. Used for
// sequence fetches, where clamped near-duplicate regions would
// otherwise pollute the cache. Offline mode still reads the cache.
func NoCache() Option {
	return func(o *callOptions) { o.noCache = true }
}

// Client performs cached, retrying HTTP requests.
type Client struct {
	cfg    types.ClientConfig
	store  httpcache.Store
	http   *http.Client
	logger *zap.Logger

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New builds a Client over the given store. A nil store disables
// caching regardless of configuration.
func New(cfg types.ClientConfig, store httpcache.Store) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = types.DefaultRetries
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 1.0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = types.DefaultUserAgent
	}
	if store == nil {
		cfg.CacheEnabled = false
	}
	return &Client{
		cfg:    cfg,
		store:  store,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: zap.NewNop(),
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// SetLogger installs a structured logger. The default is a no-op.
func (c *Client) SetLogger(l *zap.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Get performs a GET with query params appended to the URL.
func (c *Client) Get(rawURL string, headers map[string]string, params map[string]string, opts ...Option) (*Response, error) {
	return c.request(http.MethodGet, rawURL, headers, params, nil, opts...)
}

// Post performs a POST with a JSON-encoded body when body is non-nil.
func (c *Client) Post(rawURL string, headers map[string]string, body any, opts ...Option) (*Response, error) {
	return c.request(http.MethodPost, rawURL, headers, nil, body, opts...)
}

func (c *Client) request(method, rawURL string, headers, params map[string]string, body any, opts ...Option) (*Response, error) {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	mergedHeaders := c.mergeHeaders(headers)
	bodyBytes, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}

	key := Fingerprint(method, rawURL, params, mergedHeaders, bodyBytes)
	useCache := c.cfg.CacheEnabled && !co.noCache

	// Offline mode reads the cache even for no-cache calls; a stale
	// answer beats no answer when the network is forbidden.
	if useCache || (c.cfg.Offline && c.cfg.CacheEnabled) {
		if resp := c.readCache(key); resp != nil {
			c.logger.Debug("cache hit", zap.String("url", rawURL))
			return resp, nil
		}
	}

	if c.cfg.Offline {
		return nil, &APIError{URL: rawURL, Message: fmt.Sprintf("offline mode: cache miss for %s %s", method, rawURL)}
	}

	resp, err := c.do(method, rawURL, mergedHeaders, params, bodyBytes)
	if err != nil {
		return nil, err
	}

	if useCache {
		c.writeCache(key, resp)
	}
	return resp, nil
}

// do runs the request with up to cfg.Retries additional attempts on
// network failure, 429, and 5xx. 429 honors Retry-After when present;
// other retries wait backoff_factor * 2^(attempt-1) seconds plus a
// small linear jitter term. Any other 4xx is terminal.
func (c *Client) do(method, rawURL string, headers map[string]string, params map[string]string, body []byte) (*Response, error) {
	fullURL := rawURL
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		fullURL = rawURL + sep + values.Encode()
	}

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, fullURL, reader)
		if err != nil {
			return nil, &APIError{URL: rawURL, Message: err.Error()}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		httpResp, err := c.http.Do(req)
		if err != nil {
			if attempt < c.cfg.Retries {
				c.backoff(attempt+1, nil)
				continue
			}
			return nil, &APIError{URL: rawURL, Message: fmt.Sprintf("network error: %v", err)}
		}

		text, readErr := readBody(httpResp)
		if readErr != nil {
			if attempt < c.cfg.Retries {
				c.backoff(attempt+1, nil)
				continue
			}
			return nil, &APIError{URL: rawURL, Message: fmt.Sprintf("reading response body: %v", readErr)}
		}

		switch {
		case httpResp.StatusCode == http.StatusTooManyRequests:
			if attempt < c.cfg.Retries {
				retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
				c.logger.Debug("rate limited",
					zap.String("url", rawURL),
					zap.Int("attempt", attempt+1))
				c.backoff(attempt+1, retryAfter)
				continue
			}
			return nil, &APIError{URL: rawURL, StatusCode: httpResp.StatusCode, Message: "rate limit not cleared"}

		case httpResp.StatusCode >= 500 && httpResp.StatusCode < 600:
			if attempt < c.cfg.Retries {
				c.logger.Debug("server error, retrying",
					zap.String("url", rawURL),
					zap.Int("status", httpResp.StatusCode),
					zap.Int("attempt", attempt+1))
				c.backoff(attempt+1, nil)
				continue
			}
			return nil, &APIError{URL: rawURL, StatusCode: httpResp.StatusCode, Message: truncate(text, errorBodyLimit)}

		case httpResp.StatusCode >= 400:
			// Terminal: no retry for client errors other than 429.
			return nil, &APIError{URL: rawURL, StatusCode: httpResp.StatusCode, Message: truncate(text, errorBodyLimit)}
		}

		return &Response{
			URL:        fullURL,
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Text:       text,
		}, nil
	}

	return nil, &APIError{URL: rawURL, Message: "retries exhausted"}
}

// backoff sleeps before retry attempt (1-based). retryAfter, when
// non-nil, overrides the exponential schedule.
func (c *Client) backoff(attempt int, retryAfter *time.Duration) {
	var delay time.Duration
	if retryAfter != nil {
		delay = *retryAfter
		if delay < 0 {
			delay = 0
		}
	} else {
		seconds := c.cfg.BackoffFactor * float64(int(1)<<(attempt-1))
		delay = time.Duration(seconds * float64(time.Second))
	}
	jitter := 0.25 * float64(attempt)
	if jitter > 1.0 {
		jitter = 1.0
	}
	delay += time.Duration(jitter * float64(time.Second))
	c.sleep(delay)
}

func (c *Client) mergeHeaders(headers map[string]string) map[string]string {
	merged := map[string]string{"User-Agent": c.cfg.UserAgent}
	for k, v := range headers {
		merged[k] = v
	}
	return merged
}

func (c *Client) readCache(key string) *Response {
	entry, ok, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	ttl := c.cfg.TTL()
	if ttl > 0 && c.now().Sub(entry.SavedAt) > ttl {
		return nil
	}
	header := http.Header{}
	for k, v := range entry.Headers {
		header.Set(k, v)
	}
	return &Response{
		URL:        entry.URL,
		StatusCode: entry.StatusCode,
		Header:     header,
		Text:       entry.Body,
	}
}

func (c *Client) writeCache(key string, resp *Response) {
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	entry := &types.CacheEntry{
		URL:        resp.URL,
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       resp.Text,
		SavedAt:    c.now(),
	}
	if err := c.store.Put(key, entry); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
	}
}

func encodeBody(body any) ([]byte, error) {
	if body == nil {
		return nil, nil
	}
	return json.Marshal(body)
}

func readBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseRetryAfter(value string) *time.Duration {
	if value == "" {
		return nil
	}
	secs, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil
	}
	d := time.Duration(secs * float64(time.Second))
	return &d
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
