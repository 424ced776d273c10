package models

import "time"

// DeviceType 设备类型
type DeviceType string

const (
	DeviceTypeWearable      DeviceType = "wearable"
	DeviceTypeSensor        DeviceType = "sensor"
	DeviceTypeMonitor       DeviceType = "monitor"
	DeviceTypeCamera        DeviceType = "camera"
	DeviceTypeEnvironmental DeviceType = "environmental"
)

// Valid 校验设备类型是否合法
func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeWearable, DeviceTypeSensor, DeviceTypeMonitor, DeviceTypeCamera, DeviceTypeEnvironmental:
		return true
	}
	return false
}

// DeviceStatus 设备状态
type DeviceStatus string

const (
	DeviceStatusOnline      DeviceStatus = "online"
	DeviceStatusOffline     DeviceStatus = "offline"
	DeviceStatusError       DeviceStatus = "error"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
	DeviceStatusRetired     DeviceStatus = "retired"
)

// Device 设备元数据
//
// SerialNumber 和 NetworkAddress 属于敏感字段，落库前必须加密存储。
// 设备永不物理删除，下线通过状态迁移到 offline/retired，
// 以保证历史读数的引用完整性。
type Device struct {
	DeviceID       string              `json:"device_id" db:"device_id"`
	DeviceType     DeviceType          `json:"device_type" db:"device_type"`
	Model          string              `json:"model" db:"model"`
	Manufacturer   string              `json:"manufacturer" db:"manufacturer"`
	SerialNumber   string              `json:"serial_number" db:"serial_number"`
	NetworkAddress string              `json:"network_address" db:"network_address"`
	Location       string              `json:"location" db:"location"`
	Status         DeviceStatus        `json:"status" db:"status"`
	LastSeenAt     *time.Time          `json:"last_seen_at,omitempty" db:"last_seen_at"`
	Config         DeviceConfiguration `json:"config" db:"config"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"`
}

// DeviceConfiguration 设备配置
type DeviceConfiguration struct {
	SamplingRateSec    int                          `json:"sampling_rate_sec"`
	ThresholdOverrides map[string]ThresholdOverride `json:"threshold_overrides,omitempty"`
	EnabledAlertTypes  []string                     `json:"enabled_alert_types,omitempty"`
	RetentionDays      int                          `json:"retention_days"`
}

// ThresholdOverride 单个指标的阈值覆盖（按设备配置，未设置的字段沿用默认值）
type ThresholdOverride struct {
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	CriticalMin *float64 `json:"critical_min,omitempty"`
	CriticalMax *float64 `json:"critical_max,omitempty"`
}
