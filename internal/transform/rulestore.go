package transform

import (
	"fmt"
	"sync/atomic"

	"carelink-telemetry/internal/models"
)

// RuleStore 转换规则存储
//
// 稳态下只读，热更新通过整体快照替换（copy-on-write），
// 读取方无锁。
type RuleStore struct {
	snapshot atomic.Value // map[models.DeviceType]*models.TransformationRule
}

// NewRuleStore 创建规则存储
func NewRuleStore() *RuleStore {
	s := &RuleStore{}
	s.snapshot.Store(make(map[models.DeviceType]*models.TransformationRule))
	return s
}

// Replace 整体替换规则集（热更新入口）
//
// 载入前校验每条规则：设备类型合法、操作类型合法、
// calculate 公式能通过词法检查。任一条不合法则整体拒绝，
// 保持旧快照不变。
func (s *RuleStore) Replace(rules []models.TransformationRule) error {
	next := make(map[models.DeviceType]*models.TransformationRule, len(rules))

	for i := range rules {
		rule := rules[i]
		if rule.RuleID == "" {
			return fmt.Errorf("rule %d: rule_id is required", i)
		}
		if !rule.DeviceType.Valid() {
			return fmt.Errorf("rule %s: unknown device type %q", rule.RuleID, rule.DeviceType)
		}
		for j, op := range rule.Operations {
			switch op.Type {
			case models.OperationMap, models.OperationConvert, models.OperationFilter, models.OperationAggregate:
			case models.OperationCalculate:
				if err := CheckFormula(op.Formula); err != nil {
					return fmt.Errorf("rule %s operation %d: %w", rule.RuleID, j, err)
				}
			default:
				return fmt.Errorf("rule %s operation %d: unknown operation type %q", rule.RuleID, j, op.Type)
			}
		}
		next[rule.DeviceType] = &rule
	}

	s.snapshot.Store(next)
	return nil
}

// RuleForType 查询设备类型绑定的规则（实现 registry.RuleProvider）
func (s *RuleStore) RuleForType(deviceType models.DeviceType) (*models.TransformationRule, bool) {
	snap := s.snapshot.Load().(map[models.DeviceType]*models.TransformationRule)
	rule, ok := snap[deviceType]
	return rule, ok
}

// All 返回当前规则快照（管理 API 查询用）
func (s *RuleStore) All() []models.TransformationRule {
	snap := s.snapshot.Load().(map[models.DeviceType]*models.TransformationRule)
	out := make([]models.TransformationRule, 0, len(snap))
	for _, rule := range snap {
		out = append(out, *rule)
	}
	return out
}
