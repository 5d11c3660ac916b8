package compare

// Scores 是一次对比的聚合指标，取值均在 [0,1]。
type Scores struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	// TotalFields 是 ground truth 字段总数，CorrectFields 是 match 数。
	TotalFields   int
	CorrectFields int
}

// ComputeScores 由对比结果计算聚合指标。
// extrasInPrecision 为 true 时，多余字段作为假阳性计入精确率分母；
// 所有除零情形一律取 0。
func ComputeScores(res Result, extrasInPrecision bool) Scores {
	matches := len(res.Matches)
	total := matches + len(res.Mismatches) + len(res.Missing)

	s := Scores{
		TotalFields:   total,
		CorrectFields: matches,
	}

	if total > 0 {
		s.Recall = float64(matches) / float64(total)
		s.Accuracy = s.Recall
	}

	precisionDenom := matches
	if extrasInPrecision {
		precisionDenom += len(res.Extras)
	}
	if precisionDenom > 0 {
		s.Precision = float64(matches) / float64(precisionDenom)
	}

	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}
