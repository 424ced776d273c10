package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesConsumed 已消费的原始消息数
	MessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_messages_consumed_total",
			Help: "Total number of raw telemetry messages consumed",
		},
	)

	// MessagesPersisted 已落库的标准化读数数
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_readings_persisted_total",
			Help: "Total number of canonical readings persisted",
		},
	)

	// MessagesFiltered 被 filter 操作有意排除的消息数
	MessagesFiltered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_messages_filtered_total",
			Help: "Total number of messages excluded by filter rules",
		},
	)

	// MessagesDeadLettered 进入死信的消息数（按失败阶段）
	MessagesDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_messages_deadlettered_total",
			Help: "Total number of messages routed to the dead-letter path",
		},
		[]string{"stage"},
	)

	// AnomaliesDetected 检出的异常事件数（按类别和级别）
	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telemetry_anomalies_detected_total",
			Help: "Total number of anomaly events detected",
		},
		[]string{"category", "severity"},
	)

	// StoreRetries 存储重试次数
	StoreRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telemetry_store_retries_total",
			Help: "Total number of transient store failures retried",
		},
	)

	// ProcessingLatency 单条消息处理耗时
	ProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telemetry_processing_latency_seconds",
			Help:    "Per-message pipeline processing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// BatchSize 每个消费周期拉取的消息数
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "telemetry_batch_size",
			Help:    "Number of messages pulled per consumption cycle",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		},
	)

	// RegisteredDevices 当前注册设备数
	RegisteredDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telemetry_registered_devices",
			Help: "Number of currently registered devices",
		},
	)
)
