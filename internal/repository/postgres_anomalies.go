package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// AnomaliesRepository 异常事件仓库（anomaly_events 表）
type AnomaliesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAnomaliesRepository 创建异常事件仓库
func NewAnomaliesRepository(db *sql.DB, logger *zap.Logger) *AnomaliesRepository {
	return &AnomaliesRepository{db: db, logger: logger}
}

// Insert 插入异常事件
//
// 自然键 (device_id, timestamp, category, measurements) 冲突时跳过，
// 重放消息不会产生重复事件。
func (r *AnomaliesRepository) Insert(ctx context.Context, event *models.AnomalyEvent) error {
	measurements, err := json.Marshal(event.Measurements)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(event.RecommendedActions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO anomaly_events (
			event_id,
			device_id,
			resident_id,
			timestamp,
			category,
			severity,
			description,
			measurements,
			baseline_value,
			observed_value,
			deviation_percent,
			confidence,
			requires_immediate_action,
			recommended_actions,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
		ON CONFLICT (device_id, timestamp, category, measurements) DO NOTHING`

	result, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.DeviceID,
		event.ResidentID,
		event.Timestamp,
		string(event.Category),
		string(event.Severity),
		event.Description,
		measurements,
		event.BaselineValue,
		event.ObservedValue,
		event.DeviationPercent,
		event.Confidence,
		event.RequiresImmediateAction,
		actions,
		event.CreatedAt,
	)
	if err != nil {
		return classifyStoreError("store anomaly", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		r.logger.Debug("Duplicate anomaly event skipped",
			zap.String("device_id", event.DeviceID),
			zap.String("category", string(event.Category)),
		)
	}

	return nil
}

// ListByDevice 查询某设备的异常事件（供管理 API 检查）
func (r *AnomaliesRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]models.AnomalyEvent, error) {
	query := `
		SELECT event_id, device_id, resident_id, timestamp, category, severity,
		       description, measurements, baseline_value, observed_value,
		       deviation_percent, confidence, requires_immediate_action,
		       recommended_actions, created_at
		FROM anomaly_events
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, classifyStoreError("list anomalies", err)
	}
	defer rows.Close()

	var events []models.AnomalyEvent
	for rows.Next() {
		var event models.AnomalyEvent
		var measurements, actions []byte
		if err := rows.Scan(
			&event.EventID,
			&event.DeviceID,
			&event.ResidentID,
			&event.Timestamp,
			&event.Category,
			&event.Severity,
			&event.Description,
			&measurements,
			&event.BaselineValue,
			&event.ObservedValue,
			&event.DeviationPercent,
			&event.Confidence,
			&event.RequiresImmediateAction,
			&actions,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(measurements, &event.Measurements); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(actions, &event.RecommendedActions); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
