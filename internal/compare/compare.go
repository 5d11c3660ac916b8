package compare

import (
	"math"
	"time"
)

// Comparator 按配置的容差策略对两个展平后的文档做字段级对比。
// 零值 Comparator 表示：数值精确相等、字符串大小写敏感、不做日期归一化。
type Comparator struct {
	// NumericTolerance 是数值字段允许的绝对误差。
	NumericTolerance float64
	// DateLayouts 非空时，双方均能按其中某个格式解析的字符串按日期瞬间比较。
	DateLayouts []string
}

// FieldDiff 记录一个分类为 mismatch 的字段。
type FieldDiff struct {
	Path     string
	Expected string
	Actual   string
}

// Result 是一次文档对比的完整产物。所有切片均按路径字典序排列，保证确定性。
type Result struct {
	// Matches 是值相等的 ground truth 字段路径。
	Matches []string
	// Mismatches 是双方都存在但值不同的字段。
	Mismatches []FieldDiff
	// Missing 是 ground truth 中存在而输出缺失的字段路径。
	Missing []string
	// Extras 是输出中存在而 ground truth 缺失的字段路径，不影响召回率。
	Extras []string
}

// Diff 以 ground truth 为基准对比抽取输出。
func (c *Comparator) Diff(groundTruth, extracted map[string]interface{}) Result {
	var res Result

	for _, path := range SortedPaths(groundTruth) {
		expected := groundTruth[path]
		actual, ok := extracted[path]
		if !ok {
			res.Missing = append(res.Missing, path)
			continue
		}
		if c.equal(expected, actual) {
			res.Matches = append(res.Matches, path)
		} else {
			res.Mismatches = append(res.Mismatches, FieldDiff{
				Path:     path,
				Expected: FormatValue(expected),
				Actual:   FormatValue(actual),
			})
		}
	}

	for _, path := range SortedPaths(extracted) {
		if _, ok := groundTruth[path]; !ok {
			res.Extras = append(res.Extras, path)
		}
	}
	return res
}

// equal 做类型感知的取值相等判断：
// 数值在容差内相等；字符串先尝试日期归一化，失败则大小写敏感逐字节比较；
// 布尔与 null 严格相等；类型不一致视为不等。
func (c *Comparator) equal(expected, actual interface{}) bool {
	switch e := expected.(type) {
	case float64:
		a, ok := actual.(float64)
		if !ok {
			return false
		}
		return math.Abs(e-a) <= c.NumericTolerance
	case string:
		a, ok := actual.(string)
		if !ok {
			return false
		}
		if et, eok := c.parseDate(e); eok {
			if at, aok := c.parseDate(a); aok {
				return et.Equal(at)
			}
			// 一方是日期另一方不是，按原始字符串比较。
		}
		return e == a
	case bool:
		a, ok := actual.(bool)
		return ok && e == a
	case nil:
		return actual == nil
	default:
		return false
	}
}

// parseDate 依次尝试配置的日期格式，成功则返回 UTC 瞬间。
func (c *Comparator) parseDate(s string) (time.Time, bool) {
	for _, layout := range c.DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
