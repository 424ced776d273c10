package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"carelink-telemetry/internal/config"
	"carelink-telemetry/internal/service"
	"carelink-telemetry/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "carelink-telemetry")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting carelink-telemetry service",
		zap.String("raw_stream", cfg.Pipeline.Streams.Raw),
		zap.String("readings_stream", cfg.Pipeline.Streams.Readings),
		zap.String("deadletter_stream", cfg.Pipeline.Streams.DeadLetter),
		zap.String("consumer_group", cfg.Pipeline.ConsumerGroup),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
	)

	// 创建服务
	pipelineService, err := service.NewPipelineService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create pipeline service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := pipelineService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start pipeline service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭：停止拉取新批次，在途批次处理到终态
	cancel()
	if err := pipelineService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
