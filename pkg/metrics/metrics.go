// Package metrics 定义了服务暴露的 Prometheus 指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gin-gonic/gin"
)

var (
	// RunTransitions 按终态统计抽取运行的状态迁移。
	RunTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractlab_run_transitions_total",
			Help: "Total extraction run state transitions",
		},
		[]string{"to_status"},
	)

	// RunRetries 统计触发的运行级重试次数。
	RunRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractlab_run_retries_total",
			Help: "Total extraction run retries",
		},
	)

	// InferenceDuration 记录推理调用耗时。
	InferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractlab_inference_duration_seconds",
			Help:    "Inference call duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// EvaluationAccuracy 记录每次评估的准确率分布。
	EvaluationAccuracy = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extractlab_evaluation_accuracy",
			Help:    "Accuracy scores of evaluation runs",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// EvaluationsTotal 按评估者类型统计评估次数。
	EvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extractlab_evaluations_total",
			Help: "Total evaluation runs by evaluator type",
		},
		[]string{"evaluator_type"},
	)

	// IterationsTotal 统计迭代控制器创建的新提示词版本数。
	IterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extractlab_iterations_total",
			Help: "Total prompt iterations spawned",
		},
	)
)

// Register 将所有指标注册到默认 registry。
func Register() {
	prometheus.MustRegister(
		RunTransitions,
		RunRetries,
		InferenceDuration,
		EvaluationAccuracy,
		EvaluationsTotal,
		IterationsTotal,
	)
}

// Handler 返回挂载在 gin 路由上的 /metrics 处理函数。
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
