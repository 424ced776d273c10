package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

func newTestReading(set func(m *models.MeasurementSet)) *models.CanonicalReading {
	reading := &models.CanonicalReading{
		DeviceID:   "dev-001",
		ResidentID: "res-001",
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DataType:   models.DataTypeVitalSigns,
	}
	set(&reading.Measurements)
	return reading
}

func floatPtr(f float64) *float64 { return &f }

func TestDetector_HeartRateNormal(t *testing.T) {
	d := NewDetector(zap.NewNop())

	for _, hr := range []float64{60, 72, 100} {
		events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
			m.HeartRate = floatPtr(hr)
		}), nil)
		require.NoError(t, err)
		assert.Empty(t, events, "heart rate %v should be normal", hr)
	}
}

func TestDetector_HeartRateCriticallyLow(t *testing.T) {
	d := NewDetector(zap.NewNop())

	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.HeartRate = floatPtr(35)
	}), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.AnomalyCategoryVitalSigns, ev.Category)
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.True(t, ev.RequiresImmediateAction)
	assert.Equal(t, []string{"heart_rate"}, ev.Measurements)
	assert.Equal(t, 80.0, ev.BaselineValue)
	assert.Equal(t, 35.0, ev.ObservedValue)
	assert.InDelta(t, 56.25, ev.DeviationPercent, 1e-9)
	assert.Equal(t, 0.92, ev.Confidence)
	assert.NotEmpty(t, ev.EventID)
	assert.NotEmpty(t, ev.RecommendedActions)
}

func TestDetector_HeartRateSeverityBands(t *testing.T) {
	d := NewDetector(zap.NewNop())

	tests := []struct {
		hr        float64
		severity  models.Severity
		immediate bool
	}{
		{55, models.SeverityMedium, false},
		{110, models.SeverityMedium, false},
		{39, models.SeverityCritical, true},
		{151, models.SeverityCritical, true},
		{150, models.SeverityMedium, false}, // 恰在临界阈值上不升级
		{40, models.SeverityMedium, false},
	}

	for _, tt := range tests {
		events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
			m.HeartRate = floatPtr(tt.hr)
		}), nil)
		require.NoError(t, err)
		require.Len(t, events, 1, "heart rate %v", tt.hr)
		assert.Equal(t, tt.severity, events[0].Severity, "heart rate %v", tt.hr)
		assert.Equal(t, tt.immediate, events[0].RequiresImmediateAction, "heart rate %v", tt.hr)
	}
}

func TestDetector_BloodPressureCritical(t *testing.T) {
	d := NewDetector(zap.NewNop())

	// 185/95：收缩压与舒张压同时越界，只生成一条事件，收缩压优先
	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.SystolicBP = floatPtr(185)
		m.DiastolicBP = floatPtr(95)
	}), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.SeverityCritical, ev.Severity)
	assert.True(t, ev.RequiresImmediateAction)
	assert.Contains(t, ev.Measurements, "systolic_bp")
	assert.Equal(t, 115.0, ev.BaselineValue)
	assert.Equal(t, 185.0, ev.ObservedValue)
	assert.Equal(t, 0.90, ev.Confidence)
}

func TestDetector_BloodPressureHigh(t *testing.T) {
	d := NewDetector(zap.NewNop())

	// 越界但未达临界阈值
	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.SystolicBP = floatPtr(150)
		m.DiastolicBP = floatPtr(80)
	}), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.SeverityHigh, events[0].Severity)
	assert.False(t, events[0].RequiresImmediateAction)
	assert.Equal(t, []string{"systolic_bp"}, events[0].Measurements)
}

func TestDetector_BloodPressureNormal(t *testing.T) {
	d := NewDetector(zap.NewNop())

	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.SystolicBP = floatPtr(120)
		m.DiastolicBP = floatPtr(80)
	}), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetector_StepsBelowFloor(t *testing.T) {
	d := NewDetector(zap.NewNop())

	// 200 步低于 5000 步预期的 10%
	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.Steps = floatPtr(200)
	}), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.AnomalyCategoryMovement, ev.Category)
	assert.Equal(t, models.SeverityMedium, ev.Severity)
	assert.False(t, ev.RequiresImmediateAction)
	assert.Equal(t, 5000.0, ev.BaselineValue)
	assert.Equal(t, 200.0, ev.ObservedValue)
	assert.Equal(t, 0.75, ev.Confidence)

	// 500 步恰在下限上，不算异常
	events, err = d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.Steps = floatPtr(500)
	}), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetector_SleepBelowFloor(t *testing.T) {
	d := NewDetector(zap.NewNop())

	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.SleepMinutes = floatPtr(200)
	}), nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.AnomalyCategoryBehavioral, ev.Category)
	assert.Equal(t, models.SeverityMedium, ev.Severity)
	assert.Equal(t, 480.0, ev.BaselineValue)
	assert.Equal(t, 0.70, ev.Confidence)

	events, err = d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.SleepMinutes = floatPtr(400)
	}), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetector_MultipleMetricsProduceSeparateEvents(t *testing.T) {
	d := NewDetector(zap.NewNop())

	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.HeartRate = floatPtr(35)
		m.Steps = floatPtr(100)
	}), nil)
	require.NoError(t, err)
	require.Len(t, events, 2)

	categories := []models.AnomalyCategory{events[0].Category, events[1].Category}
	assert.Contains(t, categories, models.AnomalyCategoryVitalSigns)
	assert.Contains(t, categories, models.AnomalyCategoryMovement)
}

func TestDetector_ThresholdOverrides(t *testing.T) {
	d := NewDetector(zap.NewNop())

	// 住户基线心率偏低，按设备配置放宽下限
	cfg := &models.DeviceConfiguration{
		ThresholdOverrides: map[string]models.ThresholdOverride{
			"heart_rate": {Min: floatPtr(45), Max: floatPtr(95)},
		},
	}

	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.HeartRate = floatPtr(50)
	}), cfg)
	require.NoError(t, err)
	assert.Empty(t, events)

	// 同一读数在默认阈值下是异常
	events, err = d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.HeartRate = floatPtr(50)
	}), nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// 覆盖后的基线取覆盖范围中点
	events, err = d.Detect(newTestReading(func(m *models.MeasurementSet) {
		m.HeartRate = floatPtr(30)
	}), cfg)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 70.0, events[0].BaselineValue)
	assert.Equal(t, models.SeverityCritical, events[0].Severity)
}

func TestDetector_NoMeasurementsNoEvents(t *testing.T) {
	d := NewDetector(zap.NewNop())

	events, err := d.Detect(newTestReading(func(m *models.MeasurementSet) {}), nil)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetector_NilReading(t *testing.T) {
	d := NewDetector(zap.NewNop())

	_, err := d.Detect(nil, nil)
	assert.Error(t, err)
}
