package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BaSui01/agentcouncil/agent/routing"
	"github.com/BaSui01/agentcouncil/llm/circuitbreaker"
	"github.com/BaSui01/agentcouncil/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🔭 观测 Handler
// =============================================================================

// BreakerSource 熔断器状态来源（LLM 网关）
type BreakerSource interface {
	Breakers() []circuitbreaker.Snapshot
	ResetBreaker(model string) bool
}

// PheromoneSource 信息素来源（Swarm）
type PheromoneSource interface {
	Pheromones() map[string]map[string]float64
}

// RoutingTable 路由表
type RoutingTable interface {
	Stats() routing.Stats
	Refresh(ctx context.Context) error
}

// ObservabilityHandler 熔断器、信息素、路由表观测处理器
type ObservabilityHandler struct {
	breakers   BreakerSource
	pheromones PheromoneSource
	routing    RoutingTable
	logger     *zap.Logger
}

// NewObservabilityHandler 创建观测处理器
func NewObservabilityHandler(breakers BreakerSource, pheromones PheromoneSource, rt RoutingTable, logger *zap.Logger) *ObservabilityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ObservabilityHandler{
		breakers:   breakers,
		pheromones: pheromones,
		routing:    rt,
		logger:     logger.With(zap.String("handler", "observability")),
	}
}

// HandleBreakers 返回每个模型的熔断器状态
// @Summary 熔断器状态
// @Tags 观测
// @Produce json
// @Success 200 {object} Response{data=[]circuitbreaker.Snapshot}
// @Router /api/v1/observability/breakers [get]
func (h *ObservabilityHandler) HandleBreakers(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.breakers.Breakers())
}

// HandleResetBreaker 手动关闭某个模型的熔断器
// @Summary 重置熔断器
// @Tags 观测
// @Param model path string true "模型 ID"
// @Router /api/v1/observability/breakers/{model}/reset [post]
func (h *ObservabilityHandler) HandleResetBreaker(w http.ResponseWriter, r *http.Request) {
	model := r.PathValue("model")
	if !h.breakers.ResetBreaker(model) {
		WriteError(w, types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %q is not in the chain", model)), h.logger)
		return
	}
	h.logger.Info("circuit breaker reset by operator", zap.String("model", model))
	WriteSuccess(w, h.breakers.Breakers())
}

// HandlePheromones 返回每个候选人集合最近一次的信息素权重
// @Summary 信息素权重
// @Tags 观测
// @Produce json
// @Router /api/v1/observability/pheromones [get]
func (h *ObservabilityHandler) HandlePheromones(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.pheromones.Pheromones())
}

// HandleRouting 返回路由表大小、来源与构建时间
// @Summary 路由表状态
// @Tags 观测
// @Produce json
// @Success 200 {object} Response{data=routing.Stats}
// @Router /api/v1/observability/routing [get]
func (h *ObservabilityHandler) HandleRouting(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.routing.Stats())
}

// HandleRefreshRouting 立即重建路由表。来源不可用时已安装默认表，返回 503 与新状态。
// @Summary 刷新路由表
// @Tags 观测
// @Produce json
// @Router /api/v1/observability/routing/refresh [post]
func (h *ObservabilityHandler) HandleRefreshRouting(w http.ResponseWriter, r *http.Request) {
	if err := h.routing.Refresh(r.Context()); err != nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable,
			fmt.Sprintf("profile source unavailable, default table installed (%d entries)", h.routing.Stats().Size)).
			WithCause(err), h.logger)
		return
	}
	WriteSuccess(w, h.routing.Stats())
}
