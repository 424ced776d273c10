package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carelink-telemetry/internal/models"
)

func TestRuleStore_ReplaceAndLookup(t *testing.T) {
	store := NewRuleStore()

	// 初始为空
	_, ok := store.RuleForType(models.DeviceTypeWearable)
	assert.False(t, ok)

	err := store.Replace([]models.TransformationRule{
		{RuleID: "wearable-v1", DeviceType: models.DeviceTypeWearable},
		{RuleID: "sensor-v1", DeviceType: models.DeviceTypeSensor},
	})
	require.NoError(t, err)

	rule, ok := store.RuleForType(models.DeviceTypeWearable)
	require.True(t, ok)
	assert.Equal(t, "wearable-v1", rule.RuleID)

	assert.Len(t, store.All(), 2)
}

func TestRuleStore_HotSwap(t *testing.T) {
	store := NewRuleStore()

	require.NoError(t, store.Replace([]models.TransformationRule{
		{RuleID: "wearable-v1", DeviceType: models.DeviceTypeWearable},
	}))

	// 热更新后读取方立即看到新版本
	require.NoError(t, store.Replace([]models.TransformationRule{
		{RuleID: "wearable-v2", DeviceType: models.DeviceTypeWearable},
	}))

	rule, ok := store.RuleForType(models.DeviceTypeWearable)
	require.True(t, ok)
	assert.Equal(t, "wearable-v2", rule.RuleID)
}

func TestRuleStore_InvalidSetRejectedAtomically(t *testing.T) {
	store := NewRuleStore()

	require.NoError(t, store.Replace([]models.TransformationRule{
		{RuleID: "wearable-v1", DeviceType: models.DeviceTypeWearable},
	}))

	tests := []struct {
		name  string
		rules []models.TransformationRule
	}{
		{
			"缺少 rule_id",
			[]models.TransformationRule{{DeviceType: models.DeviceTypeWearable}},
		},
		{
			"未知设备类型",
			[]models.TransformationRule{{RuleID: "bad", DeviceType: "drone"}},
		},
		{
			"未知操作类型",
			[]models.TransformationRule{{
				RuleID:     "bad",
				DeviceType: models.DeviceTypeWearable,
				Operations: []models.FieldOperation{{Type: "explode"}},
			}},
		},
		{
			"公式词法非法",
			[]models.TransformationRule{{
				RuleID:     "bad",
				DeviceType: models.DeviceTypeWearable,
				Operations: []models.FieldOperation{{
					Type:    models.OperationCalculate,
					Formula: "hr; drop",
				}},
			}},
		},
		{
			"合法与非法混合整体拒绝",
			[]models.TransformationRule{
				{RuleID: "good", DeviceType: models.DeviceTypeSensor},
				{RuleID: "bad", DeviceType: "drone"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Replace(tt.rules)
			require.Error(t, err)

			// 旧快照保持不变
			rule, ok := store.RuleForType(models.DeviceTypeWearable)
			require.True(t, ok)
			assert.Equal(t, "wearable-v1", rule.RuleID)
			_, ok = store.RuleForType(models.DeviceTypeSensor)
			assert.False(t, ok)
		})
	}
}
