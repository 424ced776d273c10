package alert

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-telemetry/internal/models"
)

func TestStreamNotifier_Dispatch(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	notifier := NewStreamNotifier(client, "telemetry:alerts:")
	event := newAnomalyEvent(models.SeverityCritical, true)

	err := notifier.Dispatch(context.Background(), TierImmediate, &event)
	require.NoError(t, err)

	// 事件发布到对应级别的告警流
	ctx := context.Background()
	length, err := client.XLen(ctx, "telemetry:alerts:immediate").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	length, err = client.XLen(ctx, "telemetry:alerts:standard").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	entries, err := client.XRange(ctx, "telemetry:alerts:immediate", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values["data"], "evt-001")
}

func TestStreamNotifier_DispatchFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	notifier := NewStreamNotifier(client, "telemetry:alerts:")
	event := newAnomalyEvent(models.SeverityMedium, false)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := notifier.Dispatch(ctx, TierStandard, &event)
	assert.Error(t, err)
}
