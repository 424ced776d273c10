package models

import (
	"encoding/json"
	"time"
)

// DeadLetterRecord 死信记录
//
// 无法处理的消息不丢弃，连同失败原因和失败阶段一起保留，供事后诊断。
type DeadLetterRecord struct {
	ID         string          `json:"id" db:"id"`
	DeviceID   string          `json:"device_id" db:"device_id"`
	ResidentID string          `json:"resident_id" db:"resident_id"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
	DataType   string          `json:"data_type" db:"data_type"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	Reason     string          `json:"reason" db:"reason"`
	Stage      string          `json:"stage" db:"stage"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}
