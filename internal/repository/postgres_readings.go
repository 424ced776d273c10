package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// ReadingsRepository 标准化读数仓库（telemetry_readings 表）
type ReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingsRepository 创建读数仓库
func NewReadingsRepository(db *sql.DB, logger *zap.Logger) *ReadingsRepository {
	return &ReadingsRepository{db: db, logger: logger}
}

// Insert 插入标准化读数
//
// 自然键 (device_id, timestamp, data_type) 冲突时跳过，
// 保证至少一次投递下的幂等性。
func (r *ReadingsRepository) Insert(ctx context.Context, reading *models.CanonicalReading) error {
	measurements, err := json.Marshal(reading.Measurements)
	if err != nil {
		return err
	}
	quality, err := json.Marshal(reading.Quality)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(reading.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO telemetry_readings (
			device_id,
			resident_id,
			timestamp,
			data_type,
			measurements,
			quality,
			metadata,
			raw_original
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		ON CONFLICT (device_id, timestamp, data_type) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		reading.DeviceID,
		reading.ResidentID,
		reading.Timestamp,
		string(reading.DataType),
		measurements,
		quality,
		metadata,
		[]byte(reading.RawOriginal),
	)
	if err != nil {
		return classifyStoreError("store reading", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		// 重放消息命中幂等键，属于正常情况
		r.logger.Debug("Duplicate reading skipped",
			zap.String("device_id", reading.DeviceID),
			zap.Time("timestamp", reading.Timestamp),
			zap.String("data_type", string(reading.DataType)),
		)
	}

	return nil
}

// classifyStoreError 区分瞬时存储错误和永久错误
//
// 连接类、资源类错误包装为 StoreTransientError 触发有限重试；
// 约束冲突等数据错误原样返回（不重试）。
func classifyStoreError(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &models.StoreTransientError{Op: op, Err: err}
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return &models.StoreTransientError{Op: op, Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53",   // insufficient resources
			"57",   // operator intervention (shutdown etc.)
			"40":   // transaction rollback (serialization failure, deadlock)
			return &models.StoreTransientError{Op: op, Err: err}
		}
	}

	return err
}
