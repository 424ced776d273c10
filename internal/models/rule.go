package models

// OperationType 字段操作类型
type OperationType string

const (
	OperationMap       OperationType = "map"
	OperationConvert   OperationType = "convert"
	OperationCalculate OperationType = "calculate"
	OperationFilter    OperationType = "filter"
	OperationAggregate OperationType = "aggregate"
)

// FilterOperator 过滤条件运算符
type FilterOperator string

const (
	FilterEquals      FilterOperator = "equals"
	FilterNotEquals   FilterOperator = "not_equals"
	FilterGreaterThan FilterOperator = "greater_than"
	FilterLessThan    FilterOperator = "less_than"
	FilterContains    FilterOperator = "contains"
)

// TransformationRule 转换规则（配置数据，不是代码，可热更新）
//
// 不变式：Operations 严格按声明顺序执行，后续操作可能引用
// 前序操作产生的字段。
type TransformationRule struct {
	RuleID     string           `json:"rule_id"`
	DeviceType DeviceType       `json:"device_type"`
	Operations []FieldOperation `json:"operations"`
	Validation ValidationSpec   `json:"validation"`
}

// FieldOperation 单个字段操作
type FieldOperation struct {
	Type OperationType `json:"type"`

	// map: SourceField → TargetField 重命名
	// convert: 对 SourceField 做类型转换
	// calculate: 结果写入 TargetField
	SourceField string `json:"source_field,omitempty"`
	TargetField string `json:"target_field,omitempty"`

	// convert 目标表示："number", "integer", "boolean", "timestamp" 或命名自定义转换
	ConvertTo string `json:"convert_to,omitempty"`

	// calculate 使用的算术表达式和变量替换（变量名 → 记录字段名）
	Formula   string            `json:"formula,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`

	// filter 条件（任一条件不满足则丢弃整条记录）
	Conditions []FilterCondition `json:"conditions,omitempty"`

	// aggregate 时间窗口（秒，0 表示未配置窗口，透传）
	WindowSec int `json:"window_sec,omitempty"`
}

// FilterCondition 过滤条件
type FilterCondition struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    interface{}    `json:"value"`
}

// ValidationSpec 转换后的结构校验规格
type ValidationSpec struct {
	RequiredFields []string             `json:"required_fields,omitempty"`
	FieldTypes     map[string]string    `json:"field_types,omitempty"` // "number", "string", "boolean"
	Ranges         map[string]RangeSpec `json:"ranges,omitempty"`
}

// RangeSpec 数值范围约束
type RangeSpec struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}
