package internal

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Quota defaults from spec.md §4.5.
const (
	DefaultDailyLimit    = 15000
	DefaultBuffer        = 2000
	DefaultBulkCeiling    = 100
	DefaultCronMultiplier = 2
	defaultBatchMultiplier = 1.0
)

// QuotaManager guards the single paid provider's daily budget. The counter
// lives in redis (INCRBY on a UTC-date key with EXPIREAT at next midnight)
// so it is coherent across every horizontally-scaled worker, per spec.md
// §9's guidance to avoid in-process singletons. A sony/gobreaker circuit
// breaker is held alongside the counter, and BreakerOpen is a separate
// isAvailable() failure reason from quota exhaustion. The breaker counts only
// calls run through Execute; provider calls in this package do not go
// through Execute, so it does not see their failures.
type QuotaManager struct {
	redis          *redis.Client
	breaker        *gobreaker.CircuitBreaker
	dailyLimit     int
	buffer         int
	bulkCeiling    int
	cronMultiplier int
	keyPrefix      string
}

func NewQuotaManager(rdb *redis.Client, keyPrefix string, dailyLimit, buffer, bulkCeiling, cronMultiplier int) *QuotaManager {
	if dailyLimit == 0 {
		dailyLimit = DefaultDailyLimit
	}
	if bulkCeiling == 0 {
		bulkCeiling = DefaultBulkCeiling
	}
	if cronMultiplier == 0 {
		cronMultiplier = DefaultCronMultiplier
	}
	qm := &QuotaManager{
		redis:          rdb,
		dailyLimit:     dailyLimit,
		buffer:         buffer,
		bulkCeiling:    bulkCeiling,
		cronMultiplier: cronMultiplier,
		keyPrefix:      keyPrefix,
	}
	qm.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        keyPrefix + "-breaker",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	return qm
}

func (q *QuotaManager) dateKey() string {
	return q.keyPrefix + ":quota:" + time.Now().UTC().Format("2006-01-02")
}

func (q *QuotaManager) usedToday(ctx context.Context) (int, error) {
	v, err := q.redis.Get(ctx, q.dateKey()).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// CanMakeCalls reports whether n more calls fit within dailyLimit - buffer.
func (q *QuotaManager) CanMakeCalls(ctx context.Context, n int) (bool, error) {
	used, err := q.usedToday(ctx)
	if err != nil {
		return false, err
	}
	return used+n <= q.dailyLimit-q.buffer, nil
}

// RecordAPICall atomically increments today's counter by n. This is the
// only method authorized to advance the counter; the HTTP Client's onCall
// hook for the paid provider is the only caller.
func (q *QuotaManager) RecordAPICall(ctx context.Context, n int) error {
	key := q.dateKey()
	pipe := q.redis.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(n))
	pipe.ExpireAt(ctx, key, nextUTCMidnight())
	_, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}
	_ = incr
	return nil
}

func nextUTCMidnight() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// Remaining returns dailyLimit - buffer - usedToday, clamped at 0.
func (q *QuotaManager) Remaining(ctx context.Context) (int, error) {
	used, err := q.usedToday(ctx)
	if err != nil {
		return 0, err
	}
	r := q.dailyLimit - q.buffer - used
	if r < 0 {
		r = 0
	}
	return r, nil
}

// ConservativeBatchSize prevents a single operation from consuming more
// than half of the remaining daily budget.
func (q *QuotaManager) ConservativeBatchSize(ctx context.Context, desired, maxBatch int) (int, error) {
	remaining, err := q.Remaining(ctx)
	if err != nil {
		return 0, err
	}
	if maxBatch <= 0 {
		maxBatch = q.bulkCeiling
	}
	cap := int(float64(remaining/2) * defaultBatchMultiplier)
	size := desired
	if size > maxBatch {
		size = maxBatch
	}
	if size > cap {
		size = cap
	}
	if size < 0 {
		size = 0
	}
	return size, nil
}

// RequireBufferForCron demands remaining >= n*cronMultiplier, reserving
// half of the daily budget for manual/interactive use during scheduled jobs.
func (q *QuotaManager) RequireBufferForCron(ctx context.Context, n int) (bool, error) {
	remaining, err := q.Remaining(ctx)
	if err != nil {
		return false, err
	}
	return remaining >= n*q.cronMultiplier, nil
}

// Status is the shape returned by GET /api/quota/status.
type QuotaStatus struct {
	DailyLimit   int  `json:"daily_limit"`
	Buffer       int  `json:"buffer"`
	UsedToday    int  `json:"used_today"`
	Remaining    int  `json:"remaining"`
	CanMakeCalls bool `json:"can_make_calls"`
}

func (q *QuotaManager) Status(ctx context.Context) (QuotaStatus, error) {
	used, err := q.usedToday(ctx)
	if err != nil {
		return QuotaStatus{}, err
	}
	remaining := q.dailyLimit - q.buffer - used
	if remaining < 0 {
		remaining = 0
	}
	return QuotaStatus{
		DailyLimit:   q.dailyLimit,
		Buffer:       q.buffer,
		UsedToday:    used,
		Remaining:    remaining,
		CanMakeCalls: remaining > 0,
	}, nil
}

// Execute runs fn through the circuit breaker, isolating upstream transport
// breakage from plain quota exhaustion.
func (q *QuotaManager) Execute(fn func() (any, error)) (any, error) {
	return q.breaker.Execute(fn)
}

// BreakerOpen reports whether the breaker currently refuses calls.
func (q *QuotaManager) BreakerOpen() bool {
	return q.breaker.State() == gobreaker.StateOpen
}
