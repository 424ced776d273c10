package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// PostgresGateway 持久化网关的 PostgreSQL 实现
//
// 组合各表仓库，实现 Gateway 和 DeadLetterStore 契约。
type PostgresGateway struct {
	readings    *ReadingsRepository
	anomalies   *AnomaliesRepository
	deadLetters *DeadLetterRepository
}

// NewPostgresGateway 创建 PostgreSQL 持久化网关
func NewPostgresGateway(db *sql.DB, logger *zap.Logger) *PostgresGateway {
	return &PostgresGateway{
		readings:    NewReadingsRepository(db, logger),
		anomalies:   NewAnomaliesRepository(db, logger),
		deadLetters: NewDeadLetterRepository(db, logger),
	}
}

// StoreReading 写入标准化读数
func (g *PostgresGateway) StoreReading(ctx context.Context, reading *models.CanonicalReading) error {
	return g.readings.Insert(ctx, reading)
}

// StoreAnomaly 写入异常事件
func (g *PostgresGateway) StoreAnomaly(ctx context.Context, event *models.AnomalyEvent) error {
	return g.anomalies.Insert(ctx, event)
}

// StoreDeadLetter 写入死信记录
func (g *PostgresGateway) StoreDeadLetter(ctx context.Context, record *models.DeadLetterRecord) error {
	return g.deadLetters.Insert(ctx, record)
}

// Anomalies 暴露异常事件仓库（管理 API 查询用）
func (g *PostgresGateway) Anomalies() *AnomaliesRepository {
	return g.anomalies
}
