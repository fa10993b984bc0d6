package internal

import "context"

// CacheStrategy controls how the HTTP Client treats its response cache for
// a given call path.
type CacheStrategy string

const (
	CacheReadWrite CacheStrategy = "read-write"
	CacheReadOnly  CacheStrategy = "read-only"
	CacheWriteOnly CacheStrategy = "write-only"
	CacheDisabled  CacheStrategy = "disabled"
)

// RateLimitStrategy records the rate-limit mode for a given call path. The
// HTTP Client does not read it and does not throttle requests itself;
// rateLimitedTransport in transport.go is not wired into any client.
type RateLimitStrategy string

const (
	RateLimitEnforce RateLimitStrategy = "enforce"
	RateLimitLogOnly RateLimitStrategy = "log-only"
	RateLimitDisabled RateLimitStrategy = "disabled"
)

// ServiceContext is the per-request bundle described in spec.md §4.2: env
// handles, logger, quota manager, DB handle, and cache/rate-limit
// strategy. It is immutable per call path; orchestrators derive a child
// context with a narrower timeout via WithTimeout.
type ServiceContext struct {
	ctx               context.Context
	Quota             *QuotaManager
	CacheStrategy     CacheStrategy
	RateLimitStrategy RateLimitStrategy
	TimeoutMs         int
	Metadata          map[string]string
	Analytics         *AnalyticsSink
}

// NewServiceContext applies the spec's defaults: cacheStrategy=read-write,
// rateLimitStrategy=enforce.
func NewServiceContext(ctx context.Context, opts ...ServiceContextOption) *ServiceContext {
	sc := &ServiceContext{
		ctx:               ctx,
		CacheStrategy:     CacheReadWrite,
		RateLimitStrategy: RateLimitEnforce,
		Metadata:          map[string]string{},
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

type ServiceContextOption func(*ServiceContext)

func WithQuota(q *QuotaManager) ServiceContextOption {
	return func(sc *ServiceContext) { sc.Quota = q }
}

func WithAnalytics(a *AnalyticsSink) ServiceContextOption {
	return func(sc *ServiceContext) { sc.Analytics = a }
}

func WithCacheStrategy(s CacheStrategy) ServiceContextOption {
	return func(sc *ServiceContext) { sc.CacheStrategy = s }
}

func WithRateLimitStrategy(s RateLimitStrategy) ServiceContextOption {
	return func(sc *ServiceContext) { sc.RateLimitStrategy = s }
}

// Context returns the underlying context.Context for cancellation/deadline.
func (sc *ServiceContext) Context() context.Context { return sc.ctx }

// WithTimeout derives a child ServiceContext scoped to a narrower timeout
// and a fresh cancellation signal, per the orchestrator's per-attempt
// discipline (spec.md §4.6).
func (sc *ServiceContext) WithTimeout(ctx context.Context, timeoutMs int) *ServiceContext {
	child := *sc
	child.ctx = ctx
	child.TimeoutMs = timeoutMs
	return &child
}
