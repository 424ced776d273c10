package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"carelink-telemetry/pkg/database"
	"carelink-telemetry/pkg/redisutil"
)

// Config 遥测管道服务配置
type Config struct {
	Database database.Config
	Redis    redisutil.Config

	// 摄取管道配置
	Pipeline struct {
		// Redis Streams 主题
		Streams struct {
			Raw          string // 原始遥测流，如 "telemetry:raw:stream"
			Readings     string // 标准化读数输出流
			Anomalies    string // 异常事件输出流
			DeadLetter   string // 死信流
			DeviceEvents string // 设备生命周期事件流
		}
		ConsumerGroup string // 消费者组名称
		ConsumerName  string // 消费者名称
		BatchSize     int64  // 单次拉取的最大批量（背压控制）

		MinProcessInterval time.Duration // 两次消费周期之间的最小间隔（背压控制）
		MaxRetries         int           // 存储瞬时失败的最大重试次数
		RetryBackoff       time.Duration // 重试退避基准时长
		MaxDeviceWorkers   int           // 单批次内并发处理的设备数上限

		// 实时缓存（最近一条标准化读数，供看板读取）
		RealtimeKeyPrefix string
		RealtimeTTLSec    int
	}

	// 设备注册表配置
	Registry struct {
		EncryptionKey string // 敏感字段加密密钥（hex 编码的 32 字节）
		Shards        int    // 分片数
	}

	// MQTT 设备接入桥（可选启用）
	MQTT struct {
		Enabled  bool
		Broker   string
		ClientID string
		Username string
		Password string
		Topic    string
		QoS      byte
	}

	// 管理 API
	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
//
// 先尝试读取 .env 文件（不存在则忽略），再从环境变量加载，
// 未设置的项使用默认值。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "carelink")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Pipeline.Streams.Raw = getEnv("STREAM_RAW", "telemetry:raw:stream")
	cfg.Pipeline.Streams.Readings = getEnv("STREAM_READINGS", "telemetry:readings:stream")
	cfg.Pipeline.Streams.Anomalies = getEnv("STREAM_ANOMALIES", "telemetry:anomalies:stream")
	cfg.Pipeline.Streams.DeadLetter = getEnv("STREAM_DEADLETTER", "telemetry:deadletter:stream")
	cfg.Pipeline.Streams.DeviceEvents = getEnv("STREAM_DEVICE_EVENTS", "telemetry:device:events")
	cfg.Pipeline.ConsumerGroup = getEnv("CONSUMER_GROUP", "telemetry-pipeline-group")
	cfg.Pipeline.ConsumerName = getEnv("CONSUMER_NAME", "telemetry-pipeline-1")
	cfg.Pipeline.BatchSize = int64(getEnvInt("BATCH_SIZE", 50))
	cfg.Pipeline.MinProcessInterval = getEnvDuration("MIN_PROCESS_INTERVAL", 100*time.Millisecond)
	cfg.Pipeline.MaxRetries = getEnvInt("STORE_MAX_RETRIES", 3)
	cfg.Pipeline.RetryBackoff = getEnvDuration("STORE_RETRY_BACKOFF", 200*time.Millisecond)
	cfg.Pipeline.MaxDeviceWorkers = getEnvInt("MAX_DEVICE_WORKERS", 8)
	cfg.Pipeline.RealtimeKeyPrefix = getEnv("REALTIME_KEY_PREFIX", "telemetry:device:")
	cfg.Pipeline.RealtimeTTLSec = getEnvInt("REALTIME_TTL_SEC", 300)

	cfg.Registry.EncryptionKey = getEnv("DEVICE_ENC_KEY", "")
	cfg.Registry.Shards = getEnvInt("REGISTRY_SHARDS", 16)

	cfg.MQTT.Enabled = getEnvBool("MQTT_ENABLED", false)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "carelink-telemetry")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "carelink/telemetry/#")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
