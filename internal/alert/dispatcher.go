// Package alert 将异常事件按严重级别路由到分级通知通道
package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// Tier 告警通道级别
type Tier string

const (
	// TierImmediate 即时高优通道（临床人员）
	TierImmediate Tier = "immediate"
	// TierStandard 常规通道（护理人员）
	TierStandard Tier = "standard"
)

// Notifier 通知投递契约（外部协作方，管道只负责调用）
type Notifier interface {
	Dispatch(ctx context.Context, tier Tier, event *models.AnomalyEvent) error
}

// Dispatcher 告警分发器
//
// 通知是尽力而为的旁路：失败记录日志、做一次有限重试，
// 绝不阻塞摄取管道。
type Dispatcher struct {
	notifier        Notifier
	dispatchTimeout time.Duration
	logger          *zap.Logger
}

// NewDispatcher 创建告警分发器
func NewDispatcher(notifier Notifier, dispatchTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 5 * time.Second
	}
	return &Dispatcher{
		notifier:        notifier,
		dispatchTimeout: dispatchTimeout,
		logger:          logger,
	}
}

// TierFor 严重级别到通道级别的映射
// critical 或 requiresImmediateAction → 即时通道；其余 → 常规通道
func TierFor(event *models.AnomalyEvent) Tier {
	if event.Severity == models.SeverityCritical || event.RequiresImmediateAction {
		return TierImmediate
	}
	return TierStandard
}

// Dispatch 分发单条异常事件
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.AnomalyEvent) {
	tier := TierFor(event)

	dispatchCtx, cancel := context.WithTimeout(ctx, d.dispatchTimeout)
	defer cancel()

	err := d.notifier.Dispatch(dispatchCtx, tier, event)
	if err != nil {
		// 单次重试，仍失败则放弃（通知失败不影响数据落库）
		err = d.notifier.Dispatch(dispatchCtx, tier, event)
	}
	if err != nil {
		notifErr := &models.NotifierError{Tier: string(tier), Err: err}
		d.logger.Error("Failed to dispatch alert",
			zap.String("event_id", event.EventID),
			zap.String("device_id", event.DeviceID),
			zap.String("tier", string(tier)),
			zap.Error(notifErr),
		)
		return
	}

	d.logger.Info("Alert dispatched",
		zap.String("event_id", event.EventID),
		zap.String("tier", string(tier)),
		zap.String("severity", string(event.Severity)),
	)
}

// DispatchAll 分发一批异常事件
//
// cfg 带 EnabledAlertTypes 时只分发启用的类别（空列表表示全部启用）。
func (d *Dispatcher) DispatchAll(ctx context.Context, events []models.AnomalyEvent, cfg *models.DeviceConfiguration) {
	for i := range events {
		event := &events[i]
		if !alertEnabled(cfg, event.Category) {
			d.logger.Debug("Alert type disabled for device, skipping dispatch",
				zap.String("device_id", event.DeviceID),
				zap.String("category", string(event.Category)),
			)
			continue
		}
		d.Dispatch(ctx, event)
	}
}

func alertEnabled(cfg *models.DeviceConfiguration, category models.AnomalyCategory) bool {
	if cfg == nil || len(cfg.EnabledAlertTypes) == 0 {
		return true
	}
	for _, t := range cfg.EnabledAlertTypes {
		if t == string(category) {
			return true
		}
	}
	return false
}
