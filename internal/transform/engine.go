// Package transform 提供设备数据转换功能
//
// 将异构设备的原始负载按声明式规则归一化为标准读数，包括：
// - 字段重命名（map）
// - 类型强制转换（convert）
// - 算术派生字段（calculate，经受限表达式求值器）
// - 条件过滤（filter）
// - 窗口聚合（aggregate，未配置窗口时透传）
// - 转换后结构校验
package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

// CustomConversion 命名自定义转换函数
type CustomConversion func(value interface{}) (interface{}, error)

// Engine 转换规则引擎
type Engine struct {
	conversions map[string]CustomConversion
	logger      *zap.Logger
}

// NewEngine 创建转换引擎（内置常用自定义转换）
func NewEngine(logger *zap.Logger) *Engine {
	e := &Engine{
		conversions: make(map[string]CustomConversion),
		logger:      logger,
	}

	e.conversions["fahrenheit_to_celsius"] = func(v interface{}) (interface{}, error) {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric", v)
		}
		return (f - 32) * 5 / 9, nil
	}
	e.conversions["percent_to_fraction"] = func(v interface{}) (interface{}, error) {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("value %v is not numeric", v)
		}
		return f / 100, nil
	}

	return e
}

// RegisterConversion 注册命名自定义转换
func (e *Engine) RegisterConversion(name string, fn CustomConversion) {
	e.conversions[name] = fn
}

// Apply 对原始消息应用转换规则，产出标准化读数
//
// 操作严格按规则声明顺序执行。filter 命中返回 ErrRecordFiltered
// （有意排除，不是错误）；其余失败返回 TransformationError，
// 指明失败的字段和操作。
func (e *Engine) Apply(msg *models.RawMessage, rule *models.TransformationRule) (*models.CanonicalReading, error) {
	start := time.Now()

	// 工作记录：原始负载的可变副本
	record := make(map[string]interface{}, len(msg.Payload))
	for k, v := range msg.Payload {
		record[k] = v
	}

	for i, op := range rule.Operations {
		var err error
		switch op.Type {
		case models.OperationMap:
			err = e.applyMap(record, op)
		case models.OperationConvert:
			err = e.applyConvert(record, op)
		case models.OperationCalculate:
			err = e.applyCalculate(record, op)
		case models.OperationFilter:
			err = e.applyFilter(record, op)
		case models.OperationAggregate:
			err = e.applyAggregate(record, op)
		default:
			err = &models.TransformationError{
				Operation: string(op.Type),
				Message:   fmt.Sprintf("unknown operation type at index %d", i),
			}
		}
		if err != nil {
			return nil, err
		}
	}

	// 转换完成后的结构校验（失败属于 TransformationError）
	if err := validateRecord(record, &rule.Validation); err != nil {
		return nil, err
	}

	return e.buildReading(msg, record, start)
}

// applyMap 字段重命名/搬移
func (e *Engine) applyMap(record map[string]interface{}, op models.FieldOperation) error {
	value, ok := record[op.SourceField]
	if !ok {
		return &models.TransformationError{
			Field:     op.SourceField,
			Operation: string(models.OperationMap),
			Message:   "source field not present in record",
		}
	}
	record[op.TargetField] = value
	delete(record, op.SourceField)
	return nil
}

// applyConvert 类型强制转换（不可转换的输入大声失败，绝不静默取默认值）
func (e *Engine) applyConvert(record map[string]interface{}, op models.FieldOperation) error {
	value, ok := record[op.SourceField]
	if !ok {
		return &models.TransformationError{
			Field:     op.SourceField,
			Operation: string(models.OperationConvert),
			Message:   "source field not present in record",
		}
	}

	converted, err := e.convertValue(value, op.ConvertTo)
	if err != nil {
		return &models.TransformationError{
			Field:     op.SourceField,
			Operation: string(models.OperationConvert),
			Message:   fmt.Sprintf("cannot convert to %s", op.ConvertTo),
			Err:       err,
		}
	}

	record[op.SourceField] = converted
	return nil
}

func (e *Engine) convertValue(value interface{}, convertTo string) (interface{}, error) {
	switch convertTo {
	case "number":
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("value %v (%T) is not coercible to number", value, value)
		}
		return f, nil
	case "integer":
		f, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("value %v (%T) is not coercible to integer", value, value)
		}
		return float64(int64(f)), nil
	case "boolean":
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("value %q is not coercible to boolean", v)
			}
			return b, nil
		default:
			if f, ok := toFloat(value); ok {
				return f != 0, nil
			}
			return nil, fmt.Errorf("value %v (%T) is not coercible to boolean", value, value)
		}
	case "timestamp":
		switch v := value.(type) {
		case string:
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("value %q is not an ISO-8601 timestamp", v)
			}
			return ts, nil
		default:
			if f, ok := toFloat(value); ok {
				return time.Unix(int64(f), 0).UTC(), nil
			}
			return nil, fmt.Errorf("value %v (%T) is not coercible to timestamp", value, value)
		}
	default:
		fn, ok := e.conversions[convertTo]
		if !ok {
			return nil, fmt.Errorf("unknown conversion %q", convertTo)
		}
		return fn(value)
	}
}

// applyCalculate 算术派生字段（经受限表达式求值器）
func (e *Engine) applyCalculate(record map[string]interface{}, op models.FieldOperation) error {
	vars := make(map[string]float64, len(op.Variables))
	for varName, fieldName := range op.Variables {
		value, ok := record[fieldName]
		if !ok {
			return &models.TransformationError{
				Field:     fieldName,
				Operation: string(models.OperationCalculate),
				Message:   fmt.Sprintf("variable %q references missing field", varName),
			}
		}
		f, ok := toFloat(value)
		if !ok {
			return &models.TransformationError{
				Field:     fieldName,
				Operation: string(models.OperationCalculate),
				Message:   fmt.Sprintf("variable %q references non-numeric field", varName),
			}
		}
		vars[varName] = f
	}

	result, err := EvaluateExpression(op.Formula, vars)
	if err != nil {
		return &models.TransformationError{
			Field:     op.TargetField,
			Operation: string(models.OperationCalculate),
			Message:   "formula evaluation failed",
			Err:       err,
		}
	}

	record[op.TargetField] = result
	return nil
}

// applyFilter 条件过滤（任一条件不满足则丢弃整条记录）
func (e *Engine) applyFilter(record map[string]interface{}, op models.FieldOperation) error {
	for _, cond := range op.Conditions {
		pass, err := evaluateCondition(record, cond)
		if err != nil {
			return &models.TransformationError{
				Field:     cond.Field,
				Operation: string(models.OperationFilter),
				Message:   "condition evaluation failed",
				Err:       err,
			}
		}
		if !pass {
			return models.ErrRecordFiltered
		}
	}
	return nil
}

func evaluateCondition(record map[string]interface{}, cond models.FilterCondition) (bool, error) {
	value, ok := record[cond.Field]
	if !ok {
		// 字段缺失视为条件不满足
		return false, nil
	}

	switch cond.Operator {
	case models.FilterEquals:
		return looseEqual(value, cond.Value), nil
	case models.FilterNotEquals:
		return !looseEqual(value, cond.Value), nil
	case models.FilterGreaterThan:
		a, okA := toFloat(value)
		b, okB := toFloat(cond.Value)
		if !okA || !okB {
			return false, fmt.Errorf("greater_than requires numeric operands")
		}
		return a > b, nil
	case models.FilterLessThan:
		a, okA := toFloat(value)
		b, okB := toFloat(cond.Value)
		if !okA || !okB {
			return false, fmt.Errorf("less_than requires numeric operands")
		}
		return a < b, nil
	case models.FilterContains:
		s, okS := value.(string)
		sub, okSub := cond.Value.(string)
		if !okS || !okSub {
			return false, fmt.Errorf("contains requires string operands")
		}
		return strings.Contains(s, sub), nil
	default:
		return false, fmt.Errorf("unknown filter operator %q", cond.Operator)
	}
}

func looseEqual(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// applyAggregate 窗口聚合
//
// 窗口化规则为后续预留；未配置窗口时透传。
func (e *Engine) applyAggregate(record map[string]interface{}, op models.FieldOperation) error {
	if op.WindowSec > 0 {
		e.logger.Debug("Aggregate window configured but windowed aggregation not yet enabled, passing through",
			zap.Int("window_sec", op.WindowSec),
		)
	}
	return nil
}

// validateRecord 转换后结构校验
func validateRecord(record map[string]interface{}, spec *models.ValidationSpec) error {
	for _, field := range spec.RequiredFields {
		if _, ok := record[field]; !ok {
			return &models.TransformationError{
				Field:     field,
				Operation: "validation",
				Message:   "required field missing after transformation",
			}
		}
	}

	for field, expected := range spec.FieldTypes {
		value, ok := record[field]
		if !ok {
			continue
		}
		if !matchesType(value, expected) {
			return &models.TransformationError{
				Field:     field,
				Operation: "validation",
				Message:   fmt.Sprintf("expected type %s, got %T", expected, value),
			}
		}
	}

	for field, r := range spec.Ranges {
		value, ok := record[field]
		if !ok {
			continue
		}
		f, numeric := toFloat(value)
		if !numeric {
			return &models.TransformationError{
				Field:     field,
				Operation: "validation",
				Message:   "range declared on non-numeric field",
			}
		}
		if r.Min != nil && f < *r.Min {
			return &models.TransformationError{
				Field:     field,
				Operation: "validation",
				Message:   fmt.Sprintf("value %v below declared minimum %v", f, *r.Min),
			}
		}
		if r.Max != nil && f > *r.Max {
			return &models.TransformationError{
				Field:     field,
				Operation: "validation",
				Message:   fmt.Sprintf("value %v above declared maximum %v", f, *r.Max),
			}
		}
	}

	return nil
}

func matchesType(value interface{}, expected string) bool {
	switch expected {
	case "number":
		_, ok := toFloat(value)
		return ok
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		return false
	}
}

// buildReading 将工作记录映射为标准化读数
func (e *Engine) buildReading(msg *models.RawMessage, record map[string]interface{}, start time.Time) (*models.CanonicalReading, error) {
	reading := &models.CanonicalReading{
		DeviceID:   msg.DeviceID,
		ResidentID: msg.ResidentID,
		Timestamp:  msg.Timestamp,
		DataType:   msg.DataType,
	}

	rawOriginal, err := json.Marshal(msg.Payload)
	if err != nil {
		return nil, &models.TransformationError{
			Operation: "serialize",
			Message:   "failed to marshal raw payload",
			Err:       err,
		}
	}
	reading.RawOriginal = rawOriginal

	// 已知测量名映射到类型化测量集合
	mapped := 0
	numeric := 0
	for field, value := range record {
		f, ok := toFloat(value)
		if !ok {
			continue
		}
		numeric++
		if reading.Measurements.Set(field, f) {
			mapped++
		}
	}

	// 质量评分
	reading.Quality.SignalStrength = 1.0
	if s, ok := record["signal_strength"]; ok {
		if f, numericOK := toFloat(s); numericOK {
			reading.Quality.SignalStrength = f
		}
	}
	if numeric > 0 {
		reading.Quality.Completeness = float64(mapped) / float64(numeric)
	}
	reading.Quality.Integrity = 1.0

	// 处理元数据
	if fw, ok := record["firmware_version"].(string); ok {
		reading.Metadata.FirmwareVersion = fw
	}
	if b, ok := record["battery_level"]; ok {
		if f, numericOK := toFloat(b); numericOK {
			reading.Metadata.BatteryLevel = &f
		}
	}
	reading.Metadata.ProcessingLatency = time.Since(start).Milliseconds()

	return reading, nil
}

// toFloat 宽松数值转换（JSON 解析产生的 float64/字符串数字/整型）
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
