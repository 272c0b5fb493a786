package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/agentcouncil/llm/circuitbreaker"
	"github.com/BaSui01/agentcouncil/llm/retry"
	"github.com/BaSui01/agentcouncil/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// =============================================================================
// 🛡️ LLM Gateway：优先级模型链 + 每模型熔断 + 单次调用重试
// =============================================================================

// Route 模型链中的一项
type Route struct {
	// Model 模型 ID，同时作为熔断器的键
	Model string
	// Provider 承载该模型的补全服务
	Provider Provider
	// RPS 每秒请求上限，0 表示不限
	RPS float64
	// Burst 令牌桶容量
	Burst int
}

// GatewayObserver 网关观测钩子（由 internal/metrics.Collector 实现）
type GatewayObserver interface {
	ObserveLLMAttempt(model, status string, duration time.Duration, usage types.Usage)
	ObserveFallback(from, to string)
	ObserveBreakerState(model string, state circuitbreaker.State)
}

// GatewayConfig 网关配置
type GatewayConfig struct {
	// Breaker 每个模型熔断器的配置模板（Name / OnStateChange 由网关填充）
	Breaker circuitbreaker.Config
	// Retry 单模型调用的重试策略
	Retry retry.Policy
}

// DefaultGatewayConfig 返回默认网关配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Breaker: *circuitbreaker.DefaultConfig(),
		Retry:   *retry.DefaultPolicy(),
	}
}

type modelRoute struct {
	Route
	breaker circuitbreaker.CircuitBreaker
	retryer retry.Retryer
	limiter *rate.Limiter
}

// Gateway 模型调用的唯一入口，调用方不应自行实现重试
type Gateway struct {
	routes   []*modelRoute
	index    map[string]int
	observer GatewayObserver
	tracer   trace.Tracer
	logger   *zap.Logger
}

// GatewayOption 网关可选项
type GatewayOption func(*Gateway)

// WithObserver 设置观测钩子
func WithObserver(o GatewayObserver) GatewayOption {
	return func(g *Gateway) { g.observer = o }
}

// NewGateway 按优先级顺序创建网关，routes[0] 优先级最高
func NewGateway(cfg GatewayConfig, routes []Route, logger *zap.Logger, opts ...GatewayOption) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(routes) == 0 {
		return nil, errors.New("gateway requires at least one model route")
	}

	g := &Gateway{
		index:  make(map[string]int, len(routes)),
		tracer: otel.Tracer("agentcouncil/llm"),
		logger: logger.With(zap.String("component", "llm_gateway")),
	}
	for _, opt := range opts {
		opt(g)
	}

	for i, r := range routes {
		if r.Model == "" || r.Provider == nil {
			return nil, fmt.Errorf("route %d: model and provider are required", i)
		}
		if _, dup := g.index[r.Model]; dup {
			return nil, fmt.Errorf("route %d: duplicate model %q", i, r.Model)
		}

		bc := cfg.Breaker
		bc.Name = r.Model
		bc.OnStateChange = g.onBreakerStateChange
		policy := cfg.Retry

		mr := &modelRoute{
			Route:   r,
			breaker: circuitbreaker.NewCircuitBreaker(&bc, logger),
			retryer: retry.NewBackoffRetryer(&policy, logger),
		}
		if r.RPS > 0 {
			burst := r.Burst
			if burst <= 0 {
				burst = 1
			}
			mr.limiter = rate.NewLimiter(rate.Limit(r.RPS), burst)
		}
		g.index[r.Model] = len(g.routes)
		g.routes = append(g.routes, mr)
	}

	return g, nil
}

func (g *Gateway) onBreakerStateChange(model string, from, to circuitbreaker.State) {
	g.logger.Info("breaker state changed",
		zap.String("model", model),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if g.observer != nil {
		g.observer.ObserveBreakerState(model, to)
	}
}

// CompleteWithFallback 从请求中的模型（若在链中）或链首开始遍历
func (g *Gateway) CompleteWithFallback(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return g.run(ctx, g.order(req.Model), req)
}

// Complete 固定优先使用 model，失败后按优先级遍历其余模型
func (g *Gateway) Complete(ctx context.Context, model string, req *ChatRequest) (*ChatResponse, error) {
	if _, ok := g.index[model]; !ok {
		g.logger.Debug("pinned model not in chain, walking full chain", zap.String("model", model))
	}
	return g.run(ctx, g.order(model), req)
}

// order 返回本次调用的尝试顺序：首选模型 + 其余模型（保持优先级）
func (g *Gateway) order(preferred string) []*modelRoute {
	idx, ok := g.index[preferred]
	if !ok {
		return g.routes
	}
	out := make([]*modelRoute, 0, len(g.routes))
	out = append(out, g.routes[idx])
	for i, r := range g.routes {
		if i != idx {
			out = append(out, r)
		}
	}
	return out
}

func (g *Gateway) run(ctx context.Context, chain []*modelRoute, req *ChatRequest) (*ChatResponse, error) {
	ctx, span := g.tracer.Start(ctx, "llm.complete", trace.WithAttributes(
		attribute.Int("llm.chain_length", len(chain)),
		attribute.String("llm.preferred_model", chain[0].Model),
	))
	defer span.End()

	var (
		causes    []error
		attempted []string
		prev      string
	)

	for _, r := range chain {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "canceled")
			return nil, fmt.Errorf("completion canceled: %w", err)
		}

		if !r.breaker.Allow() {
			causes = append(causes, fmt.Errorf("%s: %w", r.Model, circuitbreaker.ErrCircuitOpen))
			g.logger.Debug("skipping model with open circuit", zap.String("model", r.Model))
			continue
		}

		// 本地限流不是模型故障：等待失败直接换下一个模型，不计入熔断
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				g.observe(r.Model, "rate_limited", 0, types.Usage{})
				g.logger.Debug("skipping rate limited model", zap.String("model", r.Model), zap.Error(err))
				causes = append(causes, fmt.Errorf("%s: rate limiter: %w", r.Model, err))
				if ctx.Err() != nil {
					span.RecordError(ctx.Err())
					span.SetStatus(codes.Error, "canceled")
					return nil, fmt.Errorf("completion canceled: %w", errors.Join(ctx.Err(), err))
				}
				continue
			}
		}

		if prev != "" && g.observer != nil {
			g.observer.ObserveFallback(prev, r.Model)
		}
		prev = r.Model
		attempted = append(attempted, r.Model)

		start := time.Now()
		resp, err := g.attempt(ctx, r, req)
		duration := time.Since(start)

		if err == nil {
			g.observe(r.Model, "success", duration, resp.Usage)
			resp.Attempted = attempted
			if resp.Model == "" {
				resp.Model = r.Model
			}
			span.SetAttributes(attribute.String("llm.model", r.Model), attribute.Int("llm.attempted", len(attempted)))
			return resp, nil
		}

		if circuitbreaker.IsOpen(err) {
			// Allow 与 Call 之间被其他调用抢占了半开试探
			g.observe(r.Model, "circuit_open", duration, types.Usage{})
		} else {
			g.observe(r.Model, "error", duration, types.Usage{})
			g.logger.Warn("model call failed, falling back",
				zap.String("model", r.Model),
				zap.Duration("duration", duration),
				zap.Error(err),
			)
		}
		causes = append(causes, fmt.Errorf("%s: %w", r.Model, err))

		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "canceled")
			return nil, fmt.Errorf("completion canceled: %w", errors.Join(ctx.Err(), err))
		}
	}

	err := types.NewError(types.ErrAllModelsExhausted, "every model in the fallback chain failed or is open").
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithCause(errors.Join(causes...))
	span.RecordError(err)
	span.SetStatus(codes.Error, string(types.ErrAllModelsExhausted))
	g.logger.Error("fallback chain exhausted", zap.Strings("attempted", attempted), zap.Error(err))
	return nil, err
}

// attempt 单个模型的一次调用：熔断器包裹重试，重试耗尽才计为一次熔断失败。
// 限流令牌在进入熔断器之前由 run 获取。
func (g *Gateway) attempt(ctx context.Context, r *modelRoute, req *ChatRequest) (*ChatResponse, error) {
	return circuitbreaker.CallWithResultTyped(r.breaker, ctx, func(ctx context.Context) (*ChatResponse, error) {
		return retry.DoWithResultTyped(r.retryer, ctx, func(ctx context.Context) (*ChatResponse, error) {
			call := *req
			call.Model = r.Model
			return r.Provider.Completion(ctx, &call)
		})
	})
}

func (g *Gateway) observe(model, status string, d time.Duration, usage types.Usage) {
	if g.observer != nil {
		g.observer.ObserveLLMAttempt(model, status, d, usage)
	}
}

// Models 返回按优先级排列的模型 ID
func (g *Gateway) Models() []string {
	out := make([]string, len(g.routes))
	for i, r := range g.routes {
		out[i] = r.Model
	}
	return out
}

// Breakers 返回每个模型的熔断器快照（按优先级）
func (g *Gateway) Breakers() []circuitbreaker.Snapshot {
	out := make([]circuitbreaker.Snapshot, len(g.routes))
	for i, r := range g.routes {
		out[i] = r.breaker.Snapshot()
	}
	return out
}

// ResetBreaker 手动恢复某个模型的熔断器
func (g *Gateway) ResetBreaker(model string) bool {
	idx, ok := g.index[model]
	if !ok {
		return false
	}
	g.routes[idx].breaker.Reset()
	return true
}

// HealthCheck 对支持健康检查的 Provider 逐一探测
func (g *Gateway) HealthCheck(ctx context.Context) error {
	seen := make(map[Provider]struct{})
	var errs []error
	for _, r := range g.routes {
		hc, ok := r.Provider.(HealthChecker)
		if !ok {
			continue
		}
		if _, dup := seen[r.Provider]; dup {
			continue
		}
		seen[r.Provider] = struct{}{}
		if err := hc.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Provider.Name(), err))
		}
	}
	return errors.Join(errs...)
}
