package models

import (
	"encoding/json"
	"time"
)

// DataType 原始消息数据类型
type DataType string

const (
	DataTypeVitalSigns    DataType = "vital_signs"
	DataTypeMovement      DataType = "movement"
	DataTypeSleep         DataType = "sleep"
	DataTypeActivity      DataType = "activity"
	DataTypeLocation      DataType = "location"
	DataTypeEnvironmental DataType = "environmental"
)

// Valid 校验数据类型是否合法
func (t DataType) Valid() bool {
	switch t {
	case DataTypeVitalSigns, DataTypeMovement, DataTypeSleep, DataTypeActivity, DataTypeLocation, DataTypeEnvironmental:
		return true
	}
	return false
}

// RawMessage 原始设备消息封套（从 Redis Streams 解析）
type RawMessage struct {
	StreamID   string                 `json:"-"`
	DeviceID   string                 `json:"device_id"`
	ResidentID string                 `json:"resident_id"`
	Timestamp  time.Time              `json:"timestamp"`
	DataType   DataType               `json:"data_type"`
	Payload    map[string]interface{} `json:"payload"`
}

// ParseRawMessage 从 Redis Streams 消息解析原始设备消息
//
// 消息的 data 字段承载 JSON 封套：
// {device_id, resident_id, timestamp (ISO-8601), data_type, payload}
func ParseRawMessage(streamID string, values map[string]interface{}) (*RawMessage, error) {
	dataStr, ok := values["data"].(string)
	if !ok {
		return nil, &ValidationError{Field: "data", Message: "stream entry missing data field"}
	}

	var msg RawMessage
	if err := json.Unmarshal([]byte(dataStr), &msg); err != nil {
		return nil, &ValidationError{Field: "data", Message: "envelope is not valid JSON: " + err.Error()}
	}
	msg.StreamID = streamID

	return &msg, nil
}

// Validate 封套结构校验（进入转换前的第一道检查）
func (m *RawMessage) Validate() error {
	if m.DeviceID == "" {
		return &ValidationError{Field: "device_id", Message: "required"}
	}
	if m.ResidentID == "" {
		return &ValidationError{Field: "resident_id", Message: "required"}
	}
	if m.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "required"}
	}
	if m.DataType == "" {
		return &ValidationError{Field: "data_type", Message: "required"}
	}
	if !m.DataType.Valid() {
		return &ValidationError{Field: "data_type", Message: "unknown data type: " + string(m.DataType)}
	}
	return nil
}
