package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/BaSui01/agentcouncil/agent/roundtable"
	"github.com/BaSui01/agentcouncil/agent/swarm"
	"github.com/BaSui01/agentcouncil/llm/circuitbreaker"
	"github.com/BaSui01/agentcouncil/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现网关、路由、圆桌与 Swarm 的观测接口
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// LLM 指标
	llmAttemptsTotal   *prometheus.CounterVec
	llmAttemptDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmFallbacksTotal  *prometheus.CounterVec
	llmBreakerState    *prometheus.GaugeVec

	// Agent 指标
	agentContributions *prometheus.CounterVec
	agentDuration      *prometheus.HistogramVec

	// 圆桌指标
	roundtableSessions *prometheus.CounterVec
	roundtableRounds   prometheus.Counter
	roundtableDropped  *prometheus.CounterVec
	roundtableDuration prometheus.Histogram

	// Swarm 指标
	swarmRounds    prometheus.Counter
	swarmResults   *prometheus.CounterVec
	swarmShare     prometheus.Histogram
	swarmPheromone *prometheus.GaugeVec
	swarmDropped   *prometheus.CounterVec

	// 路由指标
	routingRefreshes *prometheus.CounterVec
	routingTableSize prometheus.Gauge

	namespace string
	logger    *zap.Logger
}

// NewCollector 在默认 Registry 上注册全部指标；同一 namespace 只能创建一次
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		namespace: namespace,
		logger:    logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// LLM 指标
	c.llmAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "LLM call attempts per model and outcome",
		},
		[]string{"model", "status"},
	)
	c.llmAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_attempt_duration_seconds",
			Help:      "LLM call attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model"},
	)
	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"model", "type"}, // type: prompt, completion
	)
	c.llmFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_fallbacks_total",
			Help:      "Fallbacks from one model to the next in the chain",
		},
		[]string{"from", "to"},
	)
	c.llmBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "llm_breaker_state",
			Help:      "Circuit breaker state per model (0 closed, 1 half-open, 2 open)",
		},
		[]string{"model"},
	)

	// Agent 指标
	c.agentContributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_contributions_total",
			Help:      "Roundtable contributions per agent and outcome",
		},
		[]string{"agent_id", "status"},
	)
	c.agentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_contribution_duration_seconds",
			Help:      "Duration of a single roundtable contribution",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_id"},
	)

	// 圆桌指标
	c.roundtableSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roundtable_sessions_total",
			Help:      "Finished roundtable sessions by outcome (done, partial, failed)",
		},
		[]string{"outcome", "code"},
	)
	c.roundtableRounds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "roundtable_rounds_total",
		Help:      "Completed roundtable rounds",
	})
	c.roundtableDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roundtable_dropped_total",
			Help:      "Participants dropped from a roundtable by error code",
		},
		[]string{"code"},
	)
	c.roundtableDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "roundtable_session_duration_seconds",
		Help:      "Roundtable session duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	// Swarm 指标
	c.swarmRounds = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "swarm_rounds_total",
		Help:      "Tallied swarm voting rounds",
	})
	c.swarmResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swarm_results_total",
			Help:      "Swarm results by convergence",
		},
		[]string{"converged"},
	)
	c.swarmShare = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "swarm_leader_share",
		Help:      "Weighted share of the leading answer when a swarm finishes",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})
	c.swarmPheromone = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "swarm_pheromone_weight",
			Help:      "Latest pheromone weight per agent",
		},
		[]string{"agent_id"},
	)
	c.swarmDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swarm_dropped_total",
			Help:      "Swarm candidates that failed to vote by error code",
		},
		[]string{"code"},
	)

	// 路由指标
	c.routingRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_refreshes_total",
			Help:      "Routing table rebuilds by source and status",
		},
		[]string{"source", "status"},
	)
	c.routingTableSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "routing_table_size",
		Help:      "Number of focus entries in the routing table",
	})

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RegisterDB 在默认 Registry 上注册 database/sql 连接池指标
func (c *Collector) RegisterDB(name string, db *sql.DB) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 LLM 指标（llm.GatewayObserver）
// =============================================================================

// ObserveLLMAttempt 记录一次模型调用尝试
func (c *Collector) ObserveLLMAttempt(model, status string, duration time.Duration, usage types.Usage) {
	c.llmAttemptsTotal.WithLabelValues(model, status).Inc()
	c.llmAttemptDuration.WithLabelValues(model).Observe(duration.Seconds())
	if usage.PromptTokens > 0 {
		c.llmTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		c.llmTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	}
}

// ObserveFallback 记录降级
func (c *Collector) ObserveFallback(from, to string) {
	c.llmFallbacksTotal.WithLabelValues(from, to).Inc()
}

// ObserveBreakerState 记录熔断器状态
func (c *Collector) ObserveBreakerState(model string, state circuitbreaker.State) {
	c.llmBreakerState.WithLabelValues(model).Set(breakerValue(state))
}

func breakerValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateHalfOpen:
		return 1
	case circuitbreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// =============================================================================
// 🧭 路由指标（routing.Observer）
// =============================================================================

// ObserveRoutingRefresh 记录路由表重建
func (c *Collector) ObserveRoutingRefresh(source string, size int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.routingRefreshes.WithLabelValues(source, status).Inc()
	c.routingTableSize.Set(float64(size))
}

// =============================================================================
// 🪑 圆桌指标（roundtable.Observer）
// =============================================================================

// OnEvent 实现 roundtable.Observer
func (c *Collector) OnEvent(e roundtable.Event) {
	switch e.Type {
	case roundtable.EventEntry:
		c.agentContributions.WithLabelValues(e.AgentID, "ok").Inc()
		c.agentDuration.WithLabelValues(e.AgentID).Observe(e.Duration.Seconds())
	case roundtable.EventAgentDropped:
		c.agentContributions.WithLabelValues(e.AgentID, e.Code).Inc()
		c.roundtableDropped.WithLabelValues(e.Code).Inc()
	case roundtable.EventRoundCompleted:
		c.roundtableRounds.Inc()
	case roundtable.EventSessionFinished:
		outcome := "done"
		switch {
		case e.State == roundtable.StateFailed:
			outcome = "failed"
		case e.Partial:
			outcome = "partial"
		}
		c.roundtableSessions.WithLabelValues(outcome, e.Code).Inc()
		c.roundtableDuration.Observe(e.Duration.Seconds())
	}
}

// =============================================================================
// 🐜 Swarm 指标（swarm.Observer）
// =============================================================================

// ObserveSwarmRound 实现 swarm.Observer
func (c *Collector) ObserveSwarmRound(t swarm.RoundTally) {
	c.swarmRounds.Inc()
	for _, d := range t.Dropped {
		c.swarmDropped.WithLabelValues(string(d.Code)).Inc()
	}
	for id, w := range t.Weights {
		c.swarmPheromone.WithLabelValues(id).Set(w)
	}
}

// ObserveSwarmResult 实现 swarm.Observer
func (c *Collector) ObserveSwarmResult(r *swarm.Result) {
	c.swarmResults.WithLabelValues(strconv.FormatBool(r.Converged)).Inc()
	c.swarmShare.Observe(r.Share)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码归类
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
