package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"carelink-telemetry/internal/alert"
	"carelink-telemetry/internal/config"
	"carelink-telemetry/internal/consumer"
	"carelink-telemetry/internal/detector"
	"carelink-telemetry/internal/httpapi"
	"carelink-telemetry/internal/ingress"
	"carelink-telemetry/internal/registry"
	"carelink-telemetry/internal/repository"
	"carelink-telemetry/internal/transform"
	"carelink-telemetry/pkg/database"
	"carelink-telemetry/pkg/redisutil"
)

// PipelineService 遥测摄取管道服务
//
// 负责组装全部组件：设备注册表、规则存储、转换引擎、异常检测器、
// 持久化网关、告警分发器、摄取消费者、管理 API 和可选的 MQTT 接入桥。
// 依赖在构造时显式注入，不使用全局单例。
type PipelineService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client

	registry   *registry.Registry
	ruleStore  *transform.RuleStore
	consumer   *consumer.StreamConsumer
	bridge     *ingress.MQTTBridge
	httpServer *http.Server
}

// NewPipelineService 创建遥测管道服务
func NewPipelineService(cfg *config.Config, logger *zap.Logger) (*PipelineService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := redisutil.NewClient(&cfg.Redis)
	if err := redisutil.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	if cfg.Registry.EncryptionKey == "" {
		return nil, fmt.Errorf("device encryption key is required (DEVICE_ENC_KEY)")
	}
	cipher, err := registry.NewFieldCipher(cfg.Registry.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init field cipher: %w", err)
	}

	ruleStore := transform.NewRuleStore()
	eventPublisher := &deviceEventPublisher{
		redisClient: redisClient,
		stream:      cfg.Pipeline.Streams.DeviceEvents,
	}
	reg := registry.NewRegistry(cfg.Registry.Shards, cipher, ruleStore, eventPublisher, logger)

	engine := transform.NewEngine(logger)
	det := detector.NewDetector(logger)
	gateway := repository.NewPostgresGateway(db, logger)

	notifier := alert.NewStreamNotifier(redisClient, "telemetry:alerts:")
	dispatcher := alert.NewDispatcher(notifier, 5*time.Second, logger)

	streamConsumer := consumer.NewStreamConsumer(
		cfg,
		redisClient,
		reg,
		engine,
		det,
		gateway,
		gateway,
		dispatcher,
		logger,
	)

	var bridge *ingress.MQTTBridge
	if cfg.MQTT.Enabled {
		bridge, err = ingress.NewMQTTBridge(cfg, redisClient, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create MQTT bridge: %w", err)
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(reg, ruleStore, logger),
	}

	return &PipelineService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		registry:    reg,
		ruleStore:   ruleStore,
		consumer:    streamConsumer,
		bridge:      bridge,
		httpServer:  httpServer,
	}, nil
}

// Registry 暴露设备注册表（启动脚本预注册设备用）
func (s *PipelineService) Registry() *registry.Registry {
	return s.registry
}

// RuleStore 暴露规则存储（启动时载入初始规则用）
func (s *PipelineService) RuleStore() *transform.RuleStore {
	return s.ruleStore
}

// Start 启动服务
//
// 管理 API 和接入桥在各自的 goroutine 中运行，
// 消费循环在当前 goroutine 中阻塞直到 ctx 取消。
func (s *PipelineService) Start(ctx context.Context) error {
	s.logger.Info("Starting telemetry pipeline components")

	go func() {
		s.logger.Info("Admin API listening", zap.String("addr", s.config.HTTP.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Admin API server error", zap.Error(err))
		}
	}()

	if s.bridge != nil {
		go func() {
			if err := s.bridge.Start(ctx); err != nil {
				s.logger.Error("MQTT bridge error", zap.Error(err))
			}
		}()
	}

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to run stream consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *PipelineService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry pipeline service")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down admin API", zap.Error(err))
	}

	if s.bridge != nil {
		s.bridge.Stop()
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Error closing Redis client", zap.Error(err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}

	s.logger.Info("Telemetry pipeline service stopped")
	return nil
}

// deviceEventPublisher 设备生命周期事件发布器（实现 registry.EventPublisher）
type deviceEventPublisher struct {
	redisClient *redis.Client
	stream      string
}

func (p *deviceEventPublisher) PublishDeviceEvent(ctx context.Context, event map[string]interface{}) error {
	_, err := redisutil.PublishToStream(ctx, p.redisClient, p.stream, event)
	return err
}
