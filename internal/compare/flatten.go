// Package compare 实现了评估引擎的字段级对比算法：
// 将抽取输出与 ground truth 展平为统一的字段路径表示，再做类型感知的取值对比。
package compare

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Flatten 将一个 JSON 文档展平为 "点号/下标" 路径到叶子值的映射。
// 嵌套对象与行项目数组被统一处理，例如 {"items":[{"amount":5}]} 展平为 "items.0.amount": 5。
// 空对象与空数组不产生叶子路径。
func Flatten(doc []byte) (map[string]interface{}, error) {
	var root interface{}
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("解析 JSON 文档失败: %w", err)
	}

	out := make(map[string]interface{})
	flattenValue("", root, out)
	return out, nil
}

func flattenValue(prefix string, v interface{}, out map[string]interface{}) {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, child := range node {
			flattenValue(joinPath(prefix, key), child, out)
		}
	case []interface{}:
		for i, child := range node {
			flattenValue(joinPath(prefix, strconv.Itoa(i)), child, out)
		}
	default:
		// 叶子值：字符串、数值、布尔或 null。顶层标量的路径为空字符串。
		out[prefix] = node
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// SortedPaths 返回展平结果的字典序路径列表，保证对比与产出顺序确定。
func SortedPaths(fields map[string]interface{}) []string {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FormatValue 将叶子值渲染为稳定的字符串表示，用于 mismatch 审计记录。
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
