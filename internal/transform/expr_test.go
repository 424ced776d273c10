package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateExpression_Arithmetic(t *testing.T) {
	tests := []struct {
		name     string
		formula  string
		vars     map[string]float64
		expected float64
	}{
		{"加法", "1 + 2", nil, 3},
		{"乘法优先级", "2 + 3 * 4", nil, 14},
		{"括号改变优先级", "(2 + 3) * 4", nil, 20},
		{"除法", "10 / 4", nil, 2.5},
		{"一元负号", "-5 + 3", nil, -2},
		{"嵌套括号", "((1 + 2) * (3 + 4))", nil, 21},
		{"变量代入", "hr * 2", map[string]float64{"hr": 36}, 72},
		{"多变量", "sys - dia", map[string]float64{"sys": 120, "dia": 80}, 40},
		{"华氏转摄氏", "(temp - 32) * 5 / 9", map[string]float64{"temp": 98.6}, 37},
		{"变量取负", "-offset", map[string]float64{"offset": 1.5}, -1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := EvaluateExpression(tt.formula, tt.vars)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, result, 1e-9)
		})
	}
}

func TestEvaluateExpression_Errors(t *testing.T) {
	tests := []struct {
		name    string
		formula string
		vars    map[string]float64
	}{
		{"未定义变量", "hr + 1", nil},
		{"除以零", "1 / 0", nil},
		{"变量除以零", "hr / zero", map[string]float64{"hr": 60, "zero": 0}},
		{"非法字符", "1 + $", nil},
		{"缺少右括号", "(1 + 2", nil},
		{"残留记号", "1 + 2 3", nil},
		{"空表达式", "", nil},
		{"函数调用不支持", "abs(-1)", map[string]float64{"abs": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EvaluateExpression(tt.formula, tt.vars)
			assert.Error(t, err)
		})
	}
}

func TestCheckFormula(t *testing.T) {
	assert.NoError(t, CheckFormula("(a + b) * 2"))
	assert.Error(t, CheckFormula("a; drop table"))
	assert.Error(t, CheckFormula("exec('rm')"))
}
