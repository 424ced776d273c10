package alert

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"carelink-telemetry/internal/models"
	"carelink-telemetry/pkg/redisutil"
)

// StreamNotifier 基于 Redis Streams 的通知投递实现
//
// 按通道级别发布到对应告警流，由外部通知服务（邮件/短信/推送）
// 消费后完成实际投递。投递机制不在本子系统范围内。
type StreamNotifier struct {
	redisClient  *redis.Client
	streamPrefix string
}

// NewStreamNotifier 创建流通知器
// streamPrefix 如 "telemetry:alerts:"，级别追加在后面
func NewStreamNotifier(redisClient *redis.Client, streamPrefix string) *StreamNotifier {
	return &StreamNotifier{
		redisClient:  redisClient,
		streamPrefix: streamPrefix,
	}
}

// Dispatch 实现 Notifier 接口
func (n *StreamNotifier) Dispatch(ctx context.Context, tier Tier, event *models.AnomalyEvent) error {
	stream := n.streamPrefix + string(tier)
	if _, err := redisutil.PublishJSONToStream(ctx, n.redisClient, stream, event); err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", stream, err)
	}
	return nil
}
