// Package ingress 提供 MQTT 设备接入桥
//
// 订阅设备上报主题，将厂商负载封装为统一消息封套后发布到
// 原始遥测流。摄取管道本身只消费流，不直接面对 MQTT。
package ingress

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"carelink-telemetry/internal/config"
	"carelink-telemetry/pkg/redisutil"
)

// MQTTBridge MQTT → 原始遥测流桥接器
type MQTTBridge struct {
	config      *config.Config
	client      mqtt.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTBridge 创建接入桥（连接 broker）
func NewMQTTBridge(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
	}
	if cfg.MQTT.Password != "" {
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTBridge{
		config:      cfg,
		client:      client,
		redisClient: redisClient,
		logger:      logger,
	}, nil
}

// Start 订阅设备主题并等待退出
func (b *MQTTBridge) Start(ctx context.Context) error {
	topic := b.config.MQTT.Topic
	if topic == "" {
		return fmt.Errorf("mqtt ingress topic not configured")
	}

	token := b.client.Subscribe(topic, b.config.MQTT.QoS, func(client mqtt.Client, msg mqtt.Message) {
		if err := b.handleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
			b.logger.Error("Failed to bridge MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	b.logger.Info("MQTT ingress bridge started",
		zap.String("broker", b.config.MQTT.Broker),
		zap.String("topic", topic),
		zap.String("stream", b.config.Pipeline.Streams.Raw),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅并断开连接
func (b *MQTTBridge) Stop() {
	if topic := b.config.MQTT.Topic; topic != "" {
		token := b.client.Unsubscribe(topic)
		token.Wait()
		if token.Error() != nil {
			b.logger.Error("Failed to unsubscribe", zap.Error(token.Error()))
		}
	}
	b.client.Disconnect(250)
	b.logger.Info("MQTT ingress bridge stopped")
}

// handleMessage 将一条 MQTT 消息封套化后发布到原始遥测流
//
// 设备上报可能是单个封套，也可能是封套数组（部分厂商按批上报）。
// 封套内容的结构校验由消费者负责，这里只透传。
func (b *MQTTBridge) handleMessage(ctx context.Context, topic string, payload []byte) error {
	b.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var envelopes []json.RawMessage
	if err := json.Unmarshal(payload, &envelopes); err != nil {
		// 不是数组，按单个封套处理
		envelopes = []json.RawMessage{json.RawMessage(payload)}
	}

	for _, envelope := range envelopes {
		if _, err := redisutil.PublishToStream(ctx, b.redisClient, b.config.Pipeline.Streams.Raw, map[string]interface{}{
			"data": string(envelope),
		}); err != nil {
			return fmt.Errorf("failed to publish to raw stream: %w", err)
		}
	}

	return nil
}
