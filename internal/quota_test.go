package internal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQuotaManager(t *testing.T) (*QuotaManager, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewQuotaManager(rdb, "test", 100, 10, 0, 0), mr
}

func TestNewQuotaManagerDefaults(t *testing.T) {
	qm := NewQuotaManager(nil, "p", 0, 0, 0, 0)
	assert.Equal(t, DefaultDailyLimit, qm.dailyLimit)
	assert.Equal(t, DefaultBulkCeiling, qm.bulkCeiling)
	assert.Equal(t, DefaultCronMultiplier, qm.cronMultiplier)
}

func TestNewQuotaManagerHonorsExplicitValues(t *testing.T) {
	qm := NewQuotaManager(nil, "p", 500, 50, 10, 3)
	assert.Equal(t, 500, qm.dailyLimit)
	assert.Equal(t, 10, qm.bulkCeiling)
	assert.Equal(t, 3, qm.cronMultiplier)
}

func TestQuotaManagerRecordAndRemaining(t *testing.T) {
	ctx := context.Background()
	qm, _ := newTestQuotaManager(t)

	remaining, err := qm.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, remaining) // dailyLimit 100 - buffer 10

	require.NoError(t, qm.RecordAPICall(ctx, 30))

	remaining, err = qm.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)
}

func TestQuotaManagerCanMakeCalls(t *testing.T) {
	ctx := context.Background()
	qm, _ := newTestQuotaManager(t)

	ok, err := qm.CanMakeCalls(ctx, 90)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = qm.CanMakeCalls(ctx, 91)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuotaManagerRemainingClampsAtZero(t *testing.T) {
	ctx := context.Background()
	qm, _ := newTestQuotaManager(t)

	require.NoError(t, qm.RecordAPICall(ctx, 1000))

	remaining, err := qm.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestQuotaManagerStatus(t *testing.T) {
	ctx := context.Background()
	qm, _ := newTestQuotaManager(t)
	require.NoError(t, qm.RecordAPICall(ctx, 5))

	status, err := qm.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, status.DailyLimit)
	assert.Equal(t, 10, status.Buffer)
	assert.Equal(t, 5, status.UsedToday)
	assert.Equal(t, 85, status.Remaining)
	assert.True(t, status.CanMakeCalls)
}

func TestQuotaManagerRequireBufferForCron(t *testing.T) {
	ctx := context.Background()
	qm, _ := newTestQuotaManager(t)
	// remaining starts at 90, cronMultiplier defaults to 2.
	ok, err := qm.RequireBufferForCron(ctx, 40)
	require.NoError(t, err)
	assert.True(t, ok) // 40*2=80 <= 90

	ok, err = qm.RequireBufferForCron(ctx, 50)
	require.NoError(t, err)
	assert.False(t, ok) // 50*2=100 > 90
}

func TestQuotaManagerConservativeBatchSize(t *testing.T) {
	ctx := context.Background()
	qm, _ := newTestQuotaManager(t)
	// remaining 90, cap = 90/2 = 45.
	size, err := qm.ConservativeBatchSize(ctx, 200, 0)
	require.NoError(t, err)
	assert.Equal(t, 45, size) // default bulkCeiling 100 and desired 200 both exceed the 45 cap
}

func TestNextUTCMidnightIsAfterNow(t *testing.T) {
	now := time.Now().UTC()
	mid := nextUTCMidnight()
	assert.True(t, mid.After(now))
	assert.Equal(t, 0, mid.Hour())
	assert.Equal(t, 0, mid.Minute())
}
