package repository

import (
	"context"

	"carelink-telemetry/internal/models"
)

// Gateway 持久化网关契约
//
// 对管道而言是外部协作方，消费者只依赖该接口。
// 两个写入都必须对自然键幂等（至少一次投递下重放同一条
// 消息不得产生重复记录）。
type Gateway interface {
	StoreReading(ctx context.Context, reading *models.CanonicalReading) error
	StoreAnomaly(ctx context.Context, event *models.AnomalyEvent) error
}

// DeadLetterStore 死信存储契约（落库供运维检查，与死信流并行）
type DeadLetterStore interface {
	StoreDeadLetter(ctx context.Context, record *models.DeadLetterRecord) error
}
