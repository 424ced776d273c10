// Package detector 提供基于阈值的生理/行为异常检测
//
// 对每条标准化读数做无状态评估。默认阈值是可配置项而不是
// 硬编码临床常量，可通过设备配置按指标覆盖（真实部署需要
// 按住户设定基线）。
package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// 默认阈值（设备配置未覆盖时生效）
const (
	defaultHeartRateMin     = 60.0
	defaultHeartRateMax     = 100.0
	defaultHeartRateCritMin = 40.0
	defaultHeartRateCritMax = 150.0
	defaultSystolicMin      = 90.0
	defaultSystolicMax      = 140.0
	defaultSystolicCritMax  = 180.0
	defaultDiastolicMin     = 60.0
	defaultDiastolicMax     = 90.0
	defaultDiastolicCritMax = 110.0
	defaultDailyStepGoal    = 5000.0
	defaultStepFloorRatio   = 0.10
	defaultSleepExpectedMin = 480.0
	defaultSleepFloorRatio  = 0.50
)

// 各检测算法的固定置信度
const (
	confidenceHeartRate     = 0.92
	confidenceBloodPressure = 0.90
	confidenceSteps         = 0.75
	confidenceSleep         = 0.70
)

// Detector 异常检测器（无状态，按读数评估）
type Detector struct {
	logger *zap.Logger
}

// NewDetector 创建异常检测器
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger}
}

// Detect 评估一条标准化读数，返回异常事件列表
//
// 同一条读数上多个指标越界时各生成一条独立事件。
// cfg 可为 nil（全部使用默认阈值）。
func (d *Detector) Detect(reading *models.CanonicalReading, cfg *models.DeviceConfiguration) ([]models.AnomalyEvent, error) {
	if reading == nil {
		return nil, &models.DetectorError{Metric: "all", Err: fmt.Errorf("nil reading")}
	}

	var events []models.AnomalyEvent

	if ev := d.checkHeartRate(reading, cfg); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.checkBloodPressure(reading, cfg); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.checkSteps(reading, cfg); ev != nil {
		events = append(events, *ev)
	}
	if ev := d.checkSleep(reading, cfg); ev != nil {
		events = append(events, *ev)
	}

	return events, nil
}

// checkHeartRate 心率检测
// 正常范围 60–100 bpm；<40 或 >150 升级为 critical，否则 medium
func (d *Detector) checkHeartRate(reading *models.CanonicalReading, cfg *models.DeviceConfiguration) *models.AnomalyEvent {
	hr, ok := reading.Measurements.Get("heart_rate")
	if !ok {
		return nil
	}

	min, max := defaultHeartRateMin, defaultHeartRateMax
	critMin, critMax := defaultHeartRateCritMin, defaultHeartRateCritMax
	if o := override(cfg, "heart_rate"); o != nil {
		if o.Min != nil {
			min = *o.Min
		}
		if o.Max != nil {
			max = *o.Max
		}
		if o.CriticalMin != nil {
			critMin = *o.CriticalMin
		}
		if o.CriticalMax != nil {
			critMax = *o.CriticalMax
		}
	}

	if hr >= min && hr <= max {
		return nil
	}

	severity := models.SeverityMedium
	immediate := false
	if hr < critMin || hr > critMax {
		severity = models.SeverityCritical
		immediate = true
	}

	baseline := (min + max) / 2
	return d.newEvent(reading, models.AnomalyCategoryVitalSigns, severity,
		fmt.Sprintf("Heart rate %.0f bpm outside normal range %.0f-%.0f", hr, min, max),
		[]string{"heart_rate"}, baseline, hr, confidenceHeartRate, immediate,
		heartRateActions(severity))
}

// checkBloodPressure 血压检测
// 收缩压 90–140 / 舒张压 60–90；收缩压 >180 或舒张压 >110 升级为
// critical，否则 high。两项同时越界只生成一条事件，收缩压优先。
func (d *Detector) checkBloodPressure(reading *models.CanonicalReading, cfg *models.DeviceConfiguration) *models.AnomalyEvent {
	sys, hasSys := reading.Measurements.Get("systolic_bp")
	dia, hasDia := reading.Measurements.Get("diastolic_bp")
	if !hasSys && !hasDia {
		return nil
	}

	sysMin, sysMax, sysCritMax := defaultSystolicMin, defaultSystolicMax, defaultSystolicCritMax
	diaMin, diaMax, diaCritMax := defaultDiastolicMin, defaultDiastolicMax, defaultDiastolicCritMax
	if o := override(cfg, "systolic_bp"); o != nil {
		if o.Min != nil {
			sysMin = *o.Min
		}
		if o.Max != nil {
			sysMax = *o.Max
		}
		if o.CriticalMax != nil {
			sysCritMax = *o.CriticalMax
		}
	}
	if o := override(cfg, "diastolic_bp"); o != nil {
		if o.Min != nil {
			diaMin = *o.Min
		}
		if o.Max != nil {
			diaMax = *o.Max
		}
		if o.CriticalMax != nil {
			diaCritMax = *o.CriticalMax
		}
	}

	sysBreached := hasSys && (sys < sysMin || sys > sysMax)
	diaBreached := hasDia && (dia < diaMin || dia > diaMax)
	if !sysBreached && !diaBreached {
		return nil
	}

	severity := models.SeverityHigh
	immediate := false
	if (hasSys && sys > sysCritMax) || (hasDia && dia > diaCritMax) {
		severity = models.SeverityCritical
		immediate = true
	}

	// 收缩压越界时以收缩压为主要指标
	var measurements []string
	var baseline, observed float64
	if sysBreached {
		measurements = append(measurements, "systolic_bp")
		baseline = (sysMin + sysMax) / 2
		observed = sys
	}
	if diaBreached {
		measurements = append(measurements, "diastolic_bp")
		if !sysBreached {
			baseline = (diaMin + diaMax) / 2
			observed = dia
		}
	}

	desc := "Blood pressure out of range"
	if hasSys && hasDia {
		desc = fmt.Sprintf("Blood pressure %.0f/%.0f mmHg out of range", sys, dia)
	}

	return d.newEvent(reading, models.AnomalyCategoryVitalSigns, severity, desc,
		measurements, baseline, observed, confidenceBloodPressure, immediate,
		bloodPressureActions(severity))
}

// checkSteps 活动量检测
// 日步数低于 5000 步预期的 10% 视为活动量异常（medium，非紧急）
func (d *Detector) checkSteps(reading *models.CanonicalReading, cfg *models.DeviceConfiguration) *models.AnomalyEvent {
	steps, ok := reading.Measurements.Get("steps")
	if !ok {
		return nil
	}

	goal := defaultDailyStepGoal
	floor := goal * defaultStepFloorRatio
	if o := override(cfg, "steps"); o != nil {
		if o.Max != nil {
			goal = *o.Max
			floor = goal * defaultStepFloorRatio
		}
		if o.Min != nil {
			floor = *o.Min
		}
	}

	if steps >= floor {
		return nil
	}

	return d.newEvent(reading, models.AnomalyCategoryMovement, models.SeverityMedium,
		fmt.Sprintf("Daily steps %.0f below %.0f%% of expected %.0f", steps, defaultStepFloorRatio*100, goal),
		[]string{"steps"}, goal, steps, confidenceSteps, false,
		[]string{
			"Review resident mobility during next care round",
			"Check device placement and battery",
		})
}

// checkSleep 睡眠时长检测
// 睡眠低于 480 分钟预期的 50% 视为睡眠异常（medium，非紧急）
func (d *Detector) checkSleep(reading *models.CanonicalReading, cfg *models.DeviceConfiguration) *models.AnomalyEvent {
	sleep, ok := reading.Measurements.Get("sleep_minutes")
	if !ok {
		return nil
	}

	expected := defaultSleepExpectedMin
	floor := expected * defaultSleepFloorRatio
	if o := override(cfg, "sleep_minutes"); o != nil {
		if o.Max != nil {
			expected = *o.Max
			floor = expected * defaultSleepFloorRatio
		}
		if o.Min != nil {
			floor = *o.Min
		}
	}

	if sleep >= floor {
		return nil
	}

	return d.newEvent(reading, models.AnomalyCategoryBehavioral, models.SeverityMedium,
		fmt.Sprintf("Sleep duration %.0f min below %.0f%% of expected %.0f min", sleep, defaultSleepFloorRatio*100, expected),
		[]string{"sleep_minutes"}, expected, sleep, confidenceSleep, false,
		[]string{
			"Review sleep environment and night-time disturbances",
			"Flag for GP review if pattern persists",
		})
}

func (d *Detector) newEvent(
	reading *models.CanonicalReading,
	category models.AnomalyCategory,
	severity models.Severity,
	description string,
	measurements []string,
	baseline, observed, confidence float64,
	immediate bool,
	actions []string,
) *models.AnomalyEvent {
	event := &models.AnomalyEvent{
		EventID:                 uuid.New().String(),
		DeviceID:                reading.DeviceID,
		ResidentID:              reading.ResidentID,
		Timestamp:               reading.Timestamp,
		Category:                category,
		Severity:                severity,
		Description:             description,
		Measurements:            measurements,
		BaselineValue:           baseline,
		ObservedValue:           observed,
		DeviationPercent:        deviationPercent(baseline, observed),
		Confidence:              confidence,
		RequiresImmediateAction: immediate,
		RecommendedActions:      actions,
		CreatedAt:               time.Now(),
	}

	d.logger.Info("Anomaly detected",
		zap.String("event_id", event.EventID),
		zap.String("device_id", event.DeviceID),
		zap.String("category", string(category)),
		zap.String("severity", string(severity)),
		zap.Float64("observed", observed),
		zap.Float64("deviation_percent", event.DeviationPercent),
	)

	return event
}

// deviationPercent 偏差百分比 = |observed − baseline| / baseline × 100
func deviationPercent(baseline, observed float64) float64 {
	if baseline == 0 {
		return 0
	}
	return math.Abs(observed-baseline) / baseline * 100
}

func override(cfg *models.DeviceConfiguration, metric string) *models.ThresholdOverride {
	if cfg == nil || cfg.ThresholdOverrides == nil {
		return nil
	}
	o, ok := cfg.ThresholdOverrides[metric]
	if !ok {
		return nil
	}
	return &o
}

func heartRateActions(severity models.Severity) []string {
	if severity == models.SeverityCritical {
		return []string{
			"Check resident immediately",
			"Contact on-call clinician",
			"Prepare for emergency escalation",
		}
	}
	return []string{
		"Re-check heart rate within 15 minutes",
		"Record observation in care notes",
	}
}

func bloodPressureActions(severity models.Severity) []string {
	if severity == models.SeverityCritical {
		return []string{
			"Check resident immediately",
			"Take manual blood pressure reading",
			"Contact on-call clinician",
		}
	}
	return []string{
		"Take manual blood pressure reading",
		"Record observation in care notes",
	}
}
