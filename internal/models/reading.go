package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CanonicalReading 标准化读数（转换引擎的输出，生成后不可变）
type CanonicalReading struct {
	DeviceID     string             `json:"device_id" db:"device_id"`
	ResidentID   string             `json:"resident_id" db:"resident_id"`
	Timestamp    time.Time          `json:"timestamp" db:"timestamp"`
	DataType     DataType           `json:"data_type" db:"data_type"`
	Measurements MeasurementSet     `json:"measurements"`
	Quality      QualityScore       `json:"quality"`
	Metadata     ProcessingMetadata `json:"metadata"`
	RawOriginal  json.RawMessage    `json:"raw_original,omitempty" db:"raw_original"`
}

// NaturalKey 幂等键（至少一次投递下的去重依据）
func (r *CanonicalReading) NaturalKey() string {
	return fmt.Sprintf("%s:%d:%s", r.DeviceID, r.Timestamp.Unix(), r.DataType)
}

// MeasurementSet 类型化测量值集合（各字段均可选）
type MeasurementSet struct {
	HeartRate        *float64 `json:"heart_rate,omitempty"`
	SystolicBP       *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP      *float64 `json:"diastolic_bp,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	OxygenSaturation *float64 `json:"oxygen_saturation,omitempty"`
	RespiratoryRate  *float64 `json:"respiratory_rate,omitempty"`
	Steps            *float64 `json:"steps,omitempty"`
	SleepMinutes     *float64 `json:"sleep_minutes,omitempty"`
}

// Get 按测量名读取（供检测器和表达式变量替换使用）
func (m *MeasurementSet) Get(name string) (float64, bool) {
	var p *float64
	switch name {
	case "heart_rate":
		p = m.HeartRate
	case "systolic_bp":
		p = m.SystolicBP
	case "diastolic_bp":
		p = m.DiastolicBP
	case "temperature":
		p = m.Temperature
	case "oxygen_saturation":
		p = m.OxygenSaturation
	case "respiratory_rate":
		p = m.RespiratoryRate
	case "steps":
		p = m.Steps
	case "sleep_minutes":
		p = m.SleepMinutes
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Set 按测量名写入（转换引擎将工作记录映射到类型化字段时使用）
func (m *MeasurementSet) Set(name string, value float64) bool {
	v := value
	switch name {
	case "heart_rate":
		m.HeartRate = &v
	case "systolic_bp":
		m.SystolicBP = &v
	case "diastolic_bp":
		m.DiastolicBP = &v
	case "temperature":
		m.Temperature = &v
	case "oxygen_saturation":
		m.OxygenSaturation = &v
	case "respiratory_rate":
		m.RespiratoryRate = &v
	case "steps":
		m.Steps = &v
	case "sleep_minutes":
		m.SleepMinutes = &v
	default:
		return false
	}
	return true
}

// QualityScore 数据质量评分
type QualityScore struct {
	SignalStrength float64 `json:"signal_strength"`
	Completeness   float64 `json:"completeness"`
	Integrity      float64 `json:"integrity"`
}

// ProcessingMetadata 处理元数据
type ProcessingMetadata struct {
	FirmwareVersion   string   `json:"firmware_version,omitempty"`
	BatteryLevel      *float64 `json:"battery_level,omitempty"`
	ProcessingLatency int64    `json:"processing_latency_ms"`
}
