package models

import "time"

// AnomalyCategory 异常类别
type AnomalyCategory string

const (
	AnomalyCategoryVitalSigns    AnomalyCategory = "vital_signs"
	AnomalyCategoryMovement      AnomalyCategory = "movement"
	AnomalyCategoryBehavioral    AnomalyCategory = "behavioral"
	AnomalyCategoryEnvironmental AnomalyCategory = "environmental"
	AnomalyCategoryDevice        AnomalyCategory = "device"
)

// Severity 异常严重级别
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AnomalyEvent 异常事件（由检测器生成，生成后不可变）
//
// 同一条读数上多个指标同时越界时，每个指标各生成一条独立事件，
// 便于独立处置和独立告警。
type AnomalyEvent struct {
	EventID                 string          `json:"event_id" db:"event_id"`
	DeviceID                string          `json:"device_id" db:"device_id"`
	ResidentID              string          `json:"resident_id" db:"resident_id"`
	Timestamp               time.Time       `json:"timestamp" db:"timestamp"`
	Category                AnomalyCategory `json:"category" db:"category"`
	Severity                Severity        `json:"severity" db:"severity"`
	Description             string          `json:"description" db:"description"`
	Measurements            []string        `json:"measurements"`
	BaselineValue           float64         `json:"baseline_value" db:"baseline_value"`
	ObservedValue           float64         `json:"observed_value" db:"observed_value"`
	DeviationPercent        float64         `json:"deviation_percent" db:"deviation_percent"`
	Confidence              float64         `json:"confidence" db:"confidence"`
	RequiresImmediateAction bool            `json:"requires_immediate_action" db:"requires_immediate_action"`
	RecommendedActions      []string        `json:"recommended_actions"`
	CreatedAt               time.Time       `json:"created_at" db:"created_at"`
}
