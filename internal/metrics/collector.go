// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector 指标收集器
type Collector struct {
	// 阶段指标
	stageDuration *prometheus.HistogramVec

	// judge 指标
	judgeCallsTotal   *prometheus.CounterVec
	judgeCallDuration *prometheus.HistogramVec

	// 检索指标
	engineCandidates *prometheus.HistogramVec

	// 验证与重试指标
	verdictsTotal      *prometheus.CounterVec
	retryAttemptsTotal prometheus.Counter
	runsTotal          *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	c.judgeCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_calls_total",
			Help:      "Total number of judge invocations",
		},
		[]string{"validator", "status"},
	)

	c.judgeCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "judge_call_duration_seconds",
			Help:      "Judge invocation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"validator"},
	)

	c.engineCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_candidates",
			Help:      "Candidates produced per engine per question",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"engine"},
	)

	c.verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total validator verdicts by label",
		},
		[]string{"validator", "label"},
	)

	c.retryAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Total validation retry attempts",
		},
	)

	c.runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total pipeline runs by outcome",
		},
		[]string{"outcome"}, // proceed, fallback, error
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"stage"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"stage"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordStage 记录阶段耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordJudgeCall 记录一次 judge 调用
func (c *Collector) RecordJudgeCall(validator, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.judgeCallsTotal.WithLabelValues(validator, status).Inc()
	c.judgeCallDuration.WithLabelValues(validator).Observe(duration.Seconds())
}

// RecordEngineCandidates 记录单引擎单问题产出的候选数
func (c *Collector) RecordEngineCandidates(engine string, count int) {
	if c == nil {
		return
	}
	c.engineCandidates.WithLabelValues(engine).Observe(float64(count))
}

// RecordVerdict 记录验证裁决
func (c *Collector) RecordVerdict(validator, label string) {
	if c == nil {
		return
	}
	c.verdictsTotal.WithLabelValues(validator, label).Inc()
}

// RecordRetryAttempt 记录一次重试
func (c *Collector) RecordRetryAttempt() {
	if c == nil {
		return
	}
	c.retryAttemptsTotal.Inc()
}

// RecordRunOutcome 记录整条流水线的终态
func (c *Collector) RecordRunOutcome(outcome string) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(stage string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(stage).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(stage string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(stage).Inc()
}
