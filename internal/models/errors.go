package models

import (
	"errors"
	"fmt"
)

// ValidationError 消息封套或设备注册校验失败（致命，不重试，直接进入死信）
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Message)
}

// RuleNotFoundError 设备类型未绑定转换规则（致命，进入死信并提示运维配置缺失）
type RuleNotFoundError struct {
	DeviceID   string
	DeviceType string
}

func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("no transformation rule bound for device %s (type %s)", e.DeviceID, e.DeviceType)
}

// TransformationError 规则执行或转换后校验失败（致命，带诊断上下文进入死信）
type TransformationError struct {
	Field     string
	Operation string
	Message   string
	Err       error
}

func (e *TransformationError) Error() string {
	msg := fmt.Sprintf("transformation failed at operation %q, field %q: %s", e.Operation, e.Field, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransformationError) Unwrap() error {
	return e.Err
}

// StoreTransientError 存储层瞬时错误（有限次退避重试）
type StoreTransientError struct {
	Op  string
	Err error
}

func (e *StoreTransientError) Error() string {
	return fmt.Sprintf("transient store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreTransientError) Unwrap() error {
	return e.Err
}

// DetectorError 异常检测失败（非致命，记录日志后按零异常处理）
type DetectorError struct {
	Metric string
	Err    error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("anomaly detection failed for metric %s: %v", e.Metric, e.Err)
}

func (e *DetectorError) Unwrap() error {
	return e.Err
}

// NotifierError 告警通知失败（非致命，不影响数据落库）
type NotifierError struct {
	Tier string
	Err  error
}

func (e *NotifierError) Error() string {
	return fmt.Sprintf("notification dispatch failed for tier %s: %v", e.Tier, e.Err)
}

func (e *NotifierError) Unwrap() error {
	return e.Err
}

// IsTransient 判断错误是否属于可重试的瞬时错误
func IsTransient(err error) bool {
	var transient *StoreTransientError
	return errors.As(err, &transient)
}

// ErrDeviceNotFound 设备不存在
var ErrDeviceNotFound = errors.New("device not found")

// ErrRecordFiltered 记录被 filter 操作有意排除（不是错误语义，用于流程控制）
var ErrRecordFiltered = errors.New("record excluded by filter operation")
