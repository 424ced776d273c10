package ingress

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink-telemetry/internal/config"
)

func newTestBridge(t *testing.T) (*MQTTBridge, *redis.Client, *config.Config) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{}
	cfg.Pipeline.Streams.Raw = "telemetry:raw:stream"

	// 不连接 broker，只测试消息封套化
	return &MQTTBridge{
		config:      cfg,
		redisClient: client,
		logger:      zap.NewNop(),
	}, client, cfg
}

func TestMQTTBridge_HandleSingleEnvelope(t *testing.T) {
	bridge, client, cfg := newTestBridge(t)
	ctx := context.Background()

	payload := []byte(`{"device_id":"dev-001","resident_id":"res-001","data_type":"vital_signs","payload":{"hr":72}}`)
	require.NoError(t, bridge.handleMessage(ctx, "carelink/telemetry/dev-001", payload))

	entries, err := client.XRange(ctx, cfg.Pipeline.Streams.Raw, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values["data"], "dev-001")
}

func TestMQTTBridge_HandleBatchEnvelopes(t *testing.T) {
	bridge, client, cfg := newTestBridge(t)
	ctx := context.Background()

	// 部分厂商按批上报封套数组，逐条展开发布
	payload := []byte(`[
		{"device_id":"dev-001","payload":{"hr":72}},
		{"device_id":"dev-002","payload":{"hr":80}}
	]`)
	require.NoError(t, bridge.handleMessage(ctx, "carelink/telemetry/gateway-1", payload))

	length, err := client.XLen(ctx, cfg.Pipeline.Streams.Raw).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestMQTTBridge_HandleMessagePublishFailure(t *testing.T) {
	bridge, client, _ := newTestBridge(t)
	require.NoError(t, client.Close())

	err := bridge.handleMessage(context.Background(), "carelink/telemetry/dev-001", []byte(`{}`))
	assert.Error(t, err)
}
