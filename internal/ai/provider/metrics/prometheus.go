package metrics

import (
	"time"

	"github.com/lk2023060901/consensus-backend/internal/ai/provider/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "consensus"

// 答案合并结果
const (
	MergeCreated   = "created"   // 新的答案
	MergeJoined    = "joined"    // 已有答案新增 Provider
	MergeDuplicate = "duplicate" // 同一 Provider 重复返回相同文本
	MergeDropped   = "dropped"   // 问题已不在看板上
	MergeDiscarded = "discarded" // 空响应或格式错误
)

// Collector 导出 Provider 调用和答案合并指标
type Collector struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	merges   *prometheus.CounterVec
}

// NewCollector 创建指标并注册到 reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "requests_total",
				Help:      "Total provider invocations",
			},
			[]string{"provider"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "errors_total",
				Help:      "Failed provider invocations by error type",
			},
			[]string{"provider", "type"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "latency_seconds",
				Help:      "Provider invocation latency in seconds",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),
		merges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quiz",
				Name:      "merges_total",
				Help:      "Provider answers folded into questions by outcome",
			},
			[]string{"outcome"},
		),
	}

	if reg != nil {
		reg.MustRegister(c.requests, c.errors, c.latency, c.merges)
	}
	return c
}

func (c *Collector) RecordRequest(provider string) {
	c.requests.WithLabelValues(provider).Inc()
}

func (c *Collector) RecordLatency(provider string, d time.Duration) {
	c.latency.WithLabelValues(provider).Observe(d.Seconds())
}

func (c *Collector) RecordError(provider string, errType types.ErrorType) {
	c.errors.WithLabelValues(provider, string(errType)).Inc()
}

func (c *Collector) RecordMerge(outcome string) {
	c.merges.WithLabelValues(outcome).Inc()
}
