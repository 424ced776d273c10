package repository

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// DeadLetterRepository 死信仓库（dead_letters 表）
//
// 死信除了发布到死信流，同时落库一份供运维按设备/阶段检索。
type DeadLetterRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeadLetterRepository 创建死信仓库
func NewDeadLetterRepository(db *sql.DB, logger *zap.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, logger: logger}
}

// Insert 插入死信记录（id 冲突时跳过，重放下幂等）
func (r *DeadLetterRepository) Insert(ctx context.Context, record *models.DeadLetterRecord) error {
	query := `
		INSERT INTO dead_letters (
			id,
			device_id,
			resident_id,
			timestamp,
			data_type,
			payload,
			reason,
			stage,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.DeviceID,
		record.ResidentID,
		record.Timestamp,
		record.DataType,
		[]byte(record.Payload),
		record.Reason,
		record.Stage,
		record.CreatedAt,
	)
	if err != nil {
		return classifyStoreError("store dead letter", err)
	}

	return nil
}
