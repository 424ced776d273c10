package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"carelink-telemetry/internal/alert"
	"carelink-telemetry/internal/config"
	"carelink-telemetry/internal/detector"
	"carelink-telemetry/internal/metrics"
	"carelink-telemetry/internal/models"
	"carelink-telemetry/internal/registry"
	"carelink-telemetry/internal/repository"
	"carelink-telemetry/internal/transform"
	"carelink-telemetry/pkg/redisutil"
)

// StreamConsumer 遥测摄取消费者
//
// 从原始遥测流按批拉取消息，驱动 转换 → 异常检测 → 持久化 流程，
// 失败消息路由到死信路径。分区键为 device_id：不同设备的消息
// 并发处理，同一设备的消息严格串行（异常基线对顺序敏感）。
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	registry    *registry.Registry
	engine      *transform.Engine
	detector    *detector.Detector
	gateway     repository.Gateway
	deadStore   repository.DeadLetterStore
	dispatcher  *alert.Dispatcher
	logger      *zap.Logger
}

// NewStreamConsumer 创建摄取消费者
//
// 所有依赖显式注入，不做全局单例查找。deadStore 可为 nil
// （死信只发布到死信流，不落库）。
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	reg *registry.Registry,
	engine *transform.Engine,
	det *detector.Detector,
	gateway repository.Gateway,
	deadStore repository.DeadLetterStore,
	dispatcher *alert.Dispatcher,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		registry:    reg,
		engine:      engine,
		detector:    det,
		gateway:     gateway,
		deadStore:   deadStore,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Start 启动消费循环
//
// ctx 取消后停止拉取新批次，当前批次内的消息全部到达终态后返回
// （粗粒度取消，不中断在途消息）。
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.Pipeline.Streams.Raw
	if err := redisutil.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Pipeline.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("consumer_group", c.config.Pipeline.ConsumerGroup),
		zap.String("consumer_name", c.config.Pipeline.ConsumerName),
		zap.Int64("batch_size", c.config.Pipeline.BatchSize),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped")
			return nil
		default:
		}

		messages, err := redisutil.ReadFromStream(
			ctx,
			c.redisClient,
			stream,
			c.config.Pipeline.ConsumerGroup,
			c.config.Pipeline.ConsumerName,
			c.config.Pipeline.BatchSize,
			5*time.Second,
		)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stream consumer stopped")
				return nil
			}
			c.logger.Error("Failed to consume raw telemetry stream",
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)
			// 指数退避后重试，不中断消费循环
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second

		if len(messages) > 0 {
			metrics.BatchSize.Observe(float64(len(messages)))
			// 在途批次不随关闭信号中断，处理到终态后才退出
			c.processBatch(context.WithoutCancel(ctx), messages)
		}

		// 两次消费周期之间的最小间隔（背压控制）
		if c.config.Pipeline.MinProcessInterval > 0 {
			select {
			case <-ctx.Done():
				c.logger.Info("Stream consumer stopped")
				return nil
			case <-time.After(c.config.Pipeline.MinProcessInterval):
			}
		}
	}
}

// processBatch 处理一个批次
//
// 按 device_id 分组：组间并发（受 MaxDeviceWorkers 限制），
// 组内严格按消息顺序串行。下一批次要等当前批次全部到达终态
// 才会拉取，保证跨批次的单设备顺序。
func (c *StreamConsumer) processBatch(ctx context.Context, messages []redisutil.StreamMessage) {
	groups := make(map[string][]redisutil.StreamMessage)
	var order []string
	for _, msg := range messages {
		deviceID := deviceKey(msg.Values)
		if _, ok := groups[deviceID]; !ok {
			order = append(order, deviceID)
		}
		groups[deviceID] = append(groups[deviceID], msg)
	}

	workers := c.config.Pipeline.MaxDeviceWorkers
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, deviceID := range order {
		group := groups[deviceID]
		wg.Add(1)
		sem <- struct{}{}
		go func(group []redisutil.StreamMessage) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, msg := range group {
				c.processMessage(ctx, msg)
			}
		}(group)
	}

	wg.Wait()
}

// deviceKey 从流消息中提取分组键（解析失败归入空键组）
func deviceKey(values map[string]interface{}) string {
	dataStr, ok := values["data"].(string)
	if !ok {
		return ""
	}
	var envelope struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal([]byte(dataStr), &envelope); err != nil {
		return ""
	}
	return envelope.DeviceID
}

// processMessage 驱动单条消息走完状态机
func (c *StreamConsumer) processMessage(ctx context.Context, streamMsg redisutil.StreamMessage) {
	start := time.Now()
	metrics.MessagesConsumed.Inc()

	// Received → Validated：解析封套并做结构检查。
	// 畸形封套不会自愈，直接死信，不重试。
	msg, err := models.ParseRawMessage(streamMsg.ID, streamMsg.Values)
	if err != nil {
		c.deadLetterRaw(ctx, streamMsg, err, StateReceived)
		return
	}
	if err := msg.Validate(); err != nil {
		c.deadLetter(ctx, streamMsg, msg, err, StateValidated)
		return
	}

	// Validated → Transformed：规则查询 + 转换引擎
	rule, err := c.registry.LookupRule(msg.DeviceID)
	if err != nil {
		// 未配置规则属于运维配置缺失，升级日志级别提示
		c.logger.Error("No transformation rule configured, halting ingestion for message",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
		c.deadLetter(ctx, streamMsg, msg, err, StateValidated)
		return
	}

	reading, err := c.engine.Apply(msg, rule)
	if err != nil {
		if errors.Is(err, models.ErrRecordFiltered) {
			// filter 命中是有意排除，不是错误，确认后跳过
			metrics.MessagesFiltered.Inc()
			c.ack(ctx, streamMsg.ID)
			return
		}
		c.deadLetter(ctx, streamMsg, msg, err, StateTransformed)
		return
	}

	// Transformed → Detected：检测失败按零异常处理，
	// 不阻塞有效读数的落库。
	var deviceCfg *models.DeviceConfiguration
	if device, getErr := c.registry.Get(msg.DeviceID); getErr == nil {
		deviceCfg = &device.Config
	}

	events, err := c.detector.Detect(reading, deviceCfg)
	if err != nil {
		c.logger.Error("Anomaly detection failed, persisting reading with zero anomalies",
			zap.String("device_id", msg.DeviceID),
			zap.Error(err),
		)
		events = nil
	}
	for _, event := range events {
		metrics.AnomaliesDetected.WithLabelValues(string(event.Category), string(event.Severity)).Inc()
	}

	// Detected → Persisted：瞬时失败有限重试，耗尽后死信
	if err := c.persistWithRetry(ctx, reading, events); err != nil {
		c.deadLetter(ctx, streamMsg, msg, err, StateDetected)
		return
	}

	// 落库后的旁路动作均为尽力而为，失败不影响终态
	c.publishOutputs(ctx, reading, events)
	c.updateRealtimeCache(ctx, reading)
	if err := c.registry.TouchLastSeen(msg.DeviceID, msg.Timestamp); err != nil && !errors.Is(err, models.ErrDeviceNotFound) {
		c.logger.Warn("Failed to update device last seen", zap.Error(err))
	}
	c.dispatcher.DispatchAll(ctx, events, deviceCfg)

	c.ack(ctx, streamMsg.ID)
	metrics.MessagesPersisted.Inc()
	metrics.ProcessingLatency.Observe(time.Since(start).Seconds())

	c.logger.Info("Message persisted",
		zap.String("device_id", reading.DeviceID),
		zap.String("data_type", string(reading.DataType)),
		zap.Int("anomaly_count", len(events)),
	)
}

// persistWithRetry 写入读数和异常事件，瞬时失败按退避重试
func (c *StreamConsumer) persistWithRetry(ctx context.Context, reading *models.CanonicalReading, events []models.AnomalyEvent) error {
	store := func() error {
		if err := c.gateway.StoreReading(ctx, reading); err != nil {
			return err
		}
		for i := range events {
			if err := c.gateway.StoreAnomaly(ctx, &events[i]); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	for attempt := 0; attempt <= c.config.Pipeline.MaxRetries; attempt++ {
		if attempt > 0 {
			// Retrying 状态：退避后重试
			metrics.StoreRetries.Inc()
			backoff := c.config.Pipeline.RetryBackoff * time.Duration(1<<(attempt-1))
			c.logger.Warn("Transient store failure, retrying",
				zap.String("device_id", reading.DeviceID),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return err
			case <-time.After(backoff):
			}
		}

		err = store()
		if err == nil {
			return nil
		}
		if !models.IsTransient(err) {
			return err
		}
	}

	return fmt.Errorf("store retries exhausted: %w", err)
}

// publishOutputs 发布标准化读数和异常事件到输出流（尽力而为）
func (c *StreamConsumer) publishOutputs(ctx context.Context, reading *models.CanonicalReading, events []models.AnomalyEvent) {
	if _, err := redisutil.PublishJSONToStream(ctx, c.redisClient, c.config.Pipeline.Streams.Readings, reading); err != nil {
		c.logger.Warn("Failed to publish reading to output stream", zap.Error(err))
	}
	for i := range events {
		if _, err := redisutil.PublishJSONToStream(ctx, c.redisClient, c.config.Pipeline.Streams.Anomalies, &events[i]); err != nil {
			c.logger.Warn("Failed to publish anomaly event to output stream", zap.Error(err))
		}
	}
}

// updateRealtimeCache 更新设备最近读数缓存（看板读取，尽力而为）
func (c *StreamConsumer) updateRealtimeCache(ctx context.Context, reading *models.CanonicalReading) {
	key := c.config.Pipeline.RealtimeKeyPrefix + reading.DeviceID + ":latest"
	jsonData, err := json.Marshal(reading)
	if err != nil {
		c.logger.Warn("Failed to marshal reading for realtime cache", zap.Error(err))
		return
	}
	ttl := time.Duration(c.config.Pipeline.RealtimeTTLSec) * time.Second
	if err := c.redisClient.Set(ctx, key, jsonData, ttl).Err(); err != nil {
		c.logger.Warn("Failed to update realtime cache", zap.Error(err))
	}
}

// deadLetter 将消息路由到死信路径（流 + 落库），然后确认
func (c *StreamConsumer) deadLetter(ctx context.Context, streamMsg redisutil.StreamMessage, msg *models.RawMessage, cause error, stage State) {
	payload, _ := json.Marshal(msg.Payload)
	record := &models.DeadLetterRecord{
		// 幂等键：重放同一条消息产生同一条死信记录
		ID:         fmt.Sprintf("%s:%d:%s", msg.DeviceID, msg.Timestamp.Unix(), msg.DataType),
		DeviceID:   msg.DeviceID,
		ResidentID: msg.ResidentID,
		Timestamp:  msg.Timestamp,
		DataType:   string(msg.DataType),
		Payload:    payload,
		Reason:     cause.Error(),
		Stage:      string(stage),
		CreatedAt:  time.Now(),
	}
	c.storeDeadLetter(ctx, streamMsg, record)
}

// deadLetterRaw 封套都无法解析的消息进入死信（以流条目 ID 作为幂等键）
func (c *StreamConsumer) deadLetterRaw(ctx context.Context, streamMsg redisutil.StreamMessage, cause error, stage State) {
	payload, _ := json.Marshal(streamMsg.Values)
	record := &models.DeadLetterRecord{
		ID:        streamMsg.ID,
		Payload:   payload,
		Reason:    cause.Error(),
		Stage:     string(stage),
		CreatedAt: time.Now(),
	}
	c.storeDeadLetter(ctx, streamMsg, record)
}

func (c *StreamConsumer) storeDeadLetter(ctx context.Context, streamMsg redisutil.StreamMessage, record *models.DeadLetterRecord) {
	metrics.MessagesDeadLettered.WithLabelValues(record.Stage).Inc()

	published := true
	if _, err := redisutil.PublishJSONToStream(ctx, c.redisClient, c.config.Pipeline.Streams.DeadLetter, record); err != nil {
		published = false
		c.logger.Error("Failed to publish dead letter to stream",
			zap.String("dead_letter_id", record.ID),
			zap.Error(err),
		)
	}

	if c.deadStore != nil {
		if err := c.deadStore.StoreDeadLetter(ctx, record); err != nil {
			c.logger.Error("Failed to store dead letter record",
				zap.String("dead_letter_id", record.ID),
				zap.Error(err),
			)
		}
	}

	// 死信流发布失败时不确认，留待重投（隔离而不是丢失）
	if published {
		c.ack(ctx, streamMsg.ID)
	}

	c.logger.Warn("Message dead-lettered",
		zap.String("dead_letter_id", record.ID),
		zap.String("device_id", record.DeviceID),
		zap.String("stage", record.Stage),
		zap.String("reason", record.Reason),
	)
}

func (c *StreamConsumer) ack(ctx context.Context, id string) {
	if err := redisutil.AckMessage(ctx, c.redisClient, c.config.Pipeline.Streams.Raw, c.config.Pipeline.ConsumerGroup, id); err != nil {
		c.logger.Warn("Failed to ack message", zap.String("message_id", id), zap.Error(err))
	}
}
