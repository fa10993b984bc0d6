package internal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// retryableStatuses are the response codes the HTTP Client will retry, per
// spec.md §4.1.
var retryableStatuses = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// FetchOptions configures one outbound call through the Client.
type FetchOptions struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Purpose string // used to build the User-Agent, "<provider>/<purpose>"

	TTL          time.Duration
	MaxRetries   int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	DefaultTimeout time.Duration

	// OnCall fires after every successful network call (not cache hit);
	// used by the paid-provider wrapper to increment the quota counter.
	OnCall func(provider, url string)
}

func (o FetchOptions) withDefaults() FetchOptions {
	if o.Method == "" {
		o.Method = http.MethodGet
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 2
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 200 * time.Millisecond
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = 10 * time.Second
	}
	return o
}

// Client is the uniform outbound HTTP client from spec.md §4.1. Providers
// never call low-level fetch directly; they always go through Fetch.
type Client struct {
	http     *http.Client
	cache    *byteCache
	metrics  *cacheMetrics
	provider string
}

func NewClient(provider string, httpClient *http.Client, cache *byteCache, metrics *cacheMetrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{http: httpClient, cache: cache, metrics: metrics, provider: provider}
}

// cacheKeyFor builds `<provider>:http:<url>`, substituting a sha256 digest
// when the composed key would exceed 512 bytes (invariant 4 in spec.md §8).
func cacheKeyFor(provider, url string) string {
	key := provider + ":http:" + url
	if len(key) <= 512 {
		return key
	}
	sum := sha256.Sum256([]byte(url))
	return provider + ":http:sha256:" + hex.EncodeToString(sum[:])
}

// Fetch issues one request and decodes the JSON response into T. It never
// returns a network/decode error to the caller in the sense of spec.md
// §4.1 ("the client never throws") — it logs and emits analytics, then
// returns (nil, nil) for classified failures, and only surfaces a non-nil
// error for caller misuse (e.g. nil ServiceContext).
func Fetch[T any](c *Client, sc *ServiceContext, url string, opts FetchOptions) (*T, error) {
	if sc == nil {
		return nil, fmt.Errorf("fetch %s: nil ServiceContext", c.provider)
	}
	opts = opts.withDefaults()
	ctx := sc.Context()
	fail := func(errType string) {
		sc.Analytics.EmitProviderRequest(ProviderRequestEvent{
			Provider: c.provider, Operation: cmpOr(opts.Purpose, "enrichment"), Status: "error", ErrorType: errType,
		})
	}

	key := cacheKeyFor(c.provider, url)
	if sc.CacheStrategy == CacheReadWrite || sc.CacheStrategy == CacheReadOnly {
		if c.cache != nil {
			if b, ok, err := c.cache.Get(ctx, key); err == nil && ok {
				if c.metrics != nil {
					c.metrics.cacheHitInc()
				}
				if isMissingSentinel(b) {
					return nil, nil
				}
				var v T
				if err := json.Unmarshal(b, &v); err == nil {
					return &v, nil
				}
			} else if c.metrics != nil {
				c.metrics.cacheMissInc()
			}
		}
	}

	timeout := opts.DefaultTimeout
	if sc.TimeoutMs > 0 {
		timeout = time.Duration(sc.TimeoutMs) * time.Millisecond
	}

	var lastErr error
	errType := "network_error"
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		raw, retry, err := c.attempt(attemptCtx, url, opts)
		cancel()
		if err == nil {
			if opts.OnCall != nil {
				opts.OnCall(c.provider, url)
			}
			var v T
			if uerr := json.Unmarshal(raw, &v); uerr != nil {
				lastErr = fmt.Errorf("parse error: %w", uerr)
				errType = "parse_error"
				break
			}
			if (sc.CacheStrategy == CacheReadWrite || sc.CacheStrategy == CacheWriteOnly) && opts.TTL > 0 && c.cache != nil {
				_ = c.cache.Set(ctx, key, raw, opts.TTL)
			}
			return &v, nil
		}
		lastErr = err
		if _, ok := err.(statusErr); ok {
			errType = "http_error"
		}
		if !retry || attempt == opts.MaxRetries {
			break
		}
		delay := backoffDelay(opts.BaseDelay, attempt, opts.MaxDelay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			Log(ctx).Debug("fetch cancelled during backoff", "provider", c.provider, "url", url)
			fail("cancelled")
			return nil, nil
		}
	}

	Log(ctx).Warn("fetch failed", "provider", c.provider, "url", url, "err", lastErr)
	fail(errType)
	return nil, nil
}

// attempt performs one HTTP round trip, returning the raw response body.
// The bool return reports whether the error is retryable.
func (c *Client) attempt(ctx context.Context, url string, opts FetchOptions) ([]byte, bool, error) {
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, url, body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", fmt.Sprintf("%s/%s", c.provider, cmpOr(opts.Purpose, "enrichment")))
	req.Header.Set("Accept", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, fmt.Errorf("timeout or cancelled: %w", ctx.Err())
		}
		return nil, true, err // transient network condition
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, retryableStatuses[resp.StatusCode], newStatusErr(ErrProvider, resp.StatusCode, "non-2xx response", nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	return raw, false, nil
}

func cmpOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// backoffDelay computes min(base*2^attempt + U(0, 0.3*base*2^attempt), max),
// the exact formula from spec.md §4.1.
func backoffDelay(base time.Duration, attempt int, max time.Duration) time.Duration {
	scaled := float64(base) * pow2(attempt)
	jitter := rand.Float64() * 0.3 * scaled
	d := time.Duration(scaled + jitter)
	if d > max {
		return max
	}
	return d
}

func pow2(n int) float64 {
	out := 1.0
	for i := 0; i < n; i++ {
		out *= 2
	}
	return out
}

// BatchFetch issues all urls concurrently without caching; failed fetches
// are silently omitted from the result.
func BatchFetch[T any](c *Client, sc *ServiceContext, urls []string, opts FetchOptions) map[string]*T {
	opts.TTL = 0
	type result struct {
		url string
		val *T
	}
	out := make(chan result, len(urls))
	nocache := *sc
	nocache.CacheStrategy = CacheDisabled
	for _, u := range urls {
		go func(u string) {
			v, err := Fetch[T](c, &nocache, u, opts)
			if err != nil || v == nil {
				out <- result{url: u}
				return
			}
			out <- result{url: u, val: v}
		}(u)
	}
	results := make(map[string]*T, len(urls))
	for range urls {
		r := <-out
		if r.val != nil {
			results[r.url] = r.val
		}
	}
	return results
}

// InvalidateCache deletes the cache entry for url.
func (c *Client) InvalidateCache(ctx context.Context, url string) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, cacheKeyFor(c.provider, url))
}
