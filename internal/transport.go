package internal

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateLimitedTransport enforces `now >= lastRequest(provider) + rateLimitMs`
// per spec.md §4.1, with lastRequest stored in redis so independent workers
// observe the same clock instead of each keeping its own in-process ticker.
type rateLimitedTransport struct {
	http.RoundTripper
	provider string
	interval time.Duration
	redis    *redis.Client
}

func (t rateLimitedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.redis == nil || t.interval <= 0 {
		return t.RoundTripper.RoundTrip(r)
	}
	key := "ratelimit:" + t.provider
	ctx := r.Context()
	for {
		ttl, err := t.redis.PTTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			// Claim the slot for the next interval; best-effort, a lost race
			// just means two workers wait out the same window.
			t.redis.Set(ctx, key, "1", t.interval)
			break
		}
		select {
		case <-time.After(ttl):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return t.RoundTripper.RoundTrip(r)
}

// ScopedTransport restricts requests to a particular host so redirects
// can't send us, or our credentials, elsewhere.
type ScopedTransport struct {
	Host string
	http.RoundTripper
}

func (t ScopedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.URL.Scheme = "https"
	r.URL.Host = t.Host
	return t.RoundTripper.RoundTrip(r)
}

// HeaderTransport adds a fixed header to every request. Best used with a
// ScopedTransport so the header doesn't leak to other hosts.
type HeaderTransport struct {
	Key   string
	Value string
	http.RoundTripper
}

func (t *HeaderTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r.Header.Add(t.Key, t.Value)
	return t.RoundTripper.RoundTrip(r)
}

// errorProxyTransport turns upstream 4xx/5xx responses into a statusErr
// carrying the same status, so the HTTP Client's error classification in
// client.go can tell "upstream said 404" from "the network broke."
type errorProxyTransport struct {
	http.RoundTripper
}

func (t errorProxyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := t.RoundTripper.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		kind := ErrProvider
		_ = resp.Body.Close()
		return nil, newStatusErr(kind, resp.StatusCode, fmt.Sprintf("upstream status %d", resp.StatusCode), nil)
	}
	return resp, nil
}
