package registry

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"carelink-telemetry/internal/metrics"
	"carelink-telemetry/internal/models"
)

// RuleProvider 转换规则查询接口（由 transform.RuleStore 实现）
type RuleProvider interface {
	RuleForType(deviceType models.DeviceType) (*models.TransformationRule, bool)
}

// EventPublisher 设备生命周期事件发布接口
type EventPublisher interface {
	PublishDeviceEvent(ctx context.Context, event map[string]interface{}) error
}

// Registry 设备注册表
//
// 读多写少，采用分片 map + 分片级读写锁，支持并发读取。
// 设备永不删除，只做状态迁移。
type Registry struct {
	shards    []*shard
	shardMask uint32
	cipher    *FieldCipher
	rules     RuleProvider
	events    EventPublisher
	logger    *zap.Logger
}

type shard struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
}

// NewRegistry 创建设备注册表
// shardCount 向上取整到 2 的幂；events 可为 nil（不发布事件）
func NewRegistry(shardCount int, cipher *FieldCipher, rules RuleProvider, events EventPublisher, logger *zap.Logger) *Registry {
	n := 1
	for n < shardCount {
		n <<= 1
	}

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{devices: make(map[string]*models.Device)}
	}

	return &Registry{
		shards:    shards,
		shardMask: uint32(n - 1),
		cipher:    cipher,
		rules:     rules,
		events:    events,
		logger:    logger,
	}
}

func (r *Registry) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(deviceID))
	return r.shards[h.Sum32()&r.shardMask]
}

// Register 注册设备
//
// 必填字段缺失返回 ValidationError。序列号和网络地址加密后存储。
// 对同一 device_id 幂等：重复注册覆盖配置，保留状态和 last_seen 历史。
func (r *Registry) Register(ctx context.Context, device *models.Device) error {
	if err := validateDevice(device); err != nil {
		return err
	}

	encSerial, err := r.cipher.Encrypt(device.SerialNumber)
	if err != nil {
		return err
	}
	encAddr, err := r.cipher.Encrypt(device.NetworkAddress)
	if err != nil {
		return err
	}

	now := time.Now()
	stored := *device
	stored.SerialNumber = encSerial
	stored.NetworkAddress = encAddr
	stored.UpdatedAt = now

	s := r.shardFor(device.DeviceID)
	s.mu.Lock()
	if existing, ok := s.devices[device.DeviceID]; ok {
		// 重复注册：覆盖配置，保留状态和 last_seen
		stored.Status = existing.Status
		stored.LastSeenAt = existing.LastSeenAt
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
		if stored.Status == "" {
			stored.Status = models.DeviceStatusOffline
		}
		metrics.RegisteredDevices.Inc()
	}
	s.devices[device.DeviceID] = &stored
	s.mu.Unlock()

	r.logger.Info("Device registered",
		zap.String("device_id", device.DeviceID),
		zap.String("device_type", string(device.DeviceType)),
		zap.String("model", device.Model),
	)

	// 发布注册事件（尽力而为，失败不影响注册结果）
	if r.events != nil {
		event := map[string]interface{}{
			"event":       "device.registered",
			"device_id":   device.DeviceID,
			"device_type": string(device.DeviceType),
			"timestamp":   now.Unix(),
		}
		if err := r.events.PublishDeviceEvent(ctx, event); err != nil {
			r.logger.Warn("Failed to publish device.registered event",
				zap.String("device_id", device.DeviceID),
				zap.Error(err),
			)
		}
	}

	return nil
}

func validateDevice(device *models.Device) error {
	if device.DeviceID == "" {
		return &models.ValidationError{Field: "device_id", Message: "required"}
	}
	if device.DeviceType == "" {
		return &models.ValidationError{Field: "device_type", Message: "required"}
	}
	if !device.DeviceType.Valid() {
		return &models.ValidationError{Field: "device_type", Message: "unknown device type: " + string(device.DeviceType)}
	}
	if device.Model == "" {
		return &models.ValidationError{Field: "model", Message: "required"}
	}
	if device.Manufacturer == "" {
		return &models.ValidationError{Field: "manufacturer", Message: "required"}
	}
	if device.SerialNumber == "" {
		return &models.ValidationError{Field: "serial_number", Message: "required"}
	}
	if device.NetworkAddress == "" {
		return &models.ValidationError{Field: "network_address", Message: "required"}
	}
	return nil
}

// Get 查询设备（返回副本，调用方修改不影响注册表）
func (r *Registry) Get(deviceID string) (*models.Device, error) {
	s := r.shardFor(deviceID)
	s.mu.RLock()
	device, ok := s.devices[deviceID]
	if !ok {
		s.mu.RUnlock()
		return nil, models.ErrDeviceNotFound
	}
	copied := *device
	s.mu.RUnlock()
	return &copied, nil
}

// UpdateConfig 更新设备配置
func (r *Registry) UpdateConfig(ctx context.Context, deviceID string, cfg models.DeviceConfiguration) error {
	s := r.shardFor(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return models.ErrDeviceNotFound
	}
	device.Config = cfg
	device.UpdatedAt = time.Now()
	return nil
}

// UpdateStatus 更新设备状态
func (r *Registry) UpdateStatus(deviceID string, status models.DeviceStatus) error {
	s := r.shardFor(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return models.ErrDeviceNotFound
	}
	device.Status = status
	device.UpdatedAt = time.Now()
	return nil
}

// Retire 设备退役（状态迁移，不做物理删除）
func (r *Registry) Retire(deviceID string) error {
	return r.UpdateStatus(deviceID, models.DeviceStatusRetired)
}

// TouchLastSeen 更新设备最后活跃时间
func (r *Registry) TouchLastSeen(deviceID string, at time.Time) error {
	s := r.shardFor(deviceID)
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok {
		return models.ErrDeviceNotFound
	}
	device.LastSeenAt = &at
	device.UpdatedAt = time.Now()
	return nil
}

// LookupRule 查询设备绑定的转换规则
//
// 设备类型未绑定规则时返回 RuleNotFoundError，
// 该设备的消息必须停止摄取而不是静默放行。
func (r *Registry) LookupRule(deviceID string) (*models.TransformationRule, error) {
	device, err := r.Get(deviceID)
	if err != nil {
		return nil, &models.RuleNotFoundError{DeviceID: deviceID}
	}

	rule, ok := r.rules.RuleForType(device.DeviceType)
	if !ok {
		return nil, &models.RuleNotFoundError{DeviceID: deviceID, DeviceType: string(device.DeviceType)}
	}

	return rule, nil
}
