package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/agentcouncil/agent/roundtable"
	"github.com/BaSui01/agentcouncil/agent/swarm"
	"github.com/BaSui01/agentcouncil/api"
	"github.com/BaSui01/agentcouncil/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🪑 圆桌与 Swarm Handler
// =============================================================================

// Discusser 圆桌讨论能力
type Discusser interface {
	Discuss(ctx context.Context, topic string, opts roundtable.Options) (*roundtable.Result, error)
}

// Solver Swarm 求解能力
type Solver interface {
	Solve(ctx context.Context, task string, opts swarm.Options) (*swarm.Result, error)
}

// CouncilHandler 圆桌讨论与 Swarm 求解处理器
type CouncilHandler struct {
	roundtable Discusser
	swarm      Solver
	logger     *zap.Logger
}

// NewCouncilHandler 创建处理器
func NewCouncilHandler(rt Discusser, sw Solver, logger *zap.Logger) *CouncilHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CouncilHandler{
		roundtable: rt,
		swarm:      sw,
		logger:     logger.With(zap.String("handler", "council")),
	}
}

// HandleDiscuss 发起一场圆桌讨论并返回完整记录与汇总
// @Summary 圆桌讨论
// @Description 超时时返回 partial=true 的部分结果；没有完成任何一轮时返回 SESSION_TIMEOUT
// @Tags 议会
// @Accept json
// @Produce json
// @Param request body api.DiscussRequest true "讨论请求"
// @Success 200 {object} Response{data=roundtable.Result}
// @Failure 400 {object} Response "请求无效"
// @Failure 422 {object} Response "参与者不足"
// @Failure 504 {object} Response "会话超时"
// @Router /api/v1/roundtable/discuss [post]
func (h *CouncilHandler) HandleDiscuss(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.DiscussRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	opts, apiErr := discussOptions(&req)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	res, err := h.roundtable.Discuss(r.Context(), req.Topic, opts)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, res)
}

// HandleSolve 以信息素加权投票求解任务。未收敛不是错误，converged=false。
// @Summary Swarm 求解
// @Tags 议会
// @Accept json
// @Produce json
// @Param request body api.SolveRequest true "求解请求"
// @Success 200 {object} Response{data=swarm.Result}
// @Failure 400 {object} Response "请求无效"
// @Failure 422 {object} Response "候选人不足"
// @Router /api/v1/swarm/solve [post]
func (h *CouncilHandler) HandleSolve(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SolveRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if apiErr := req.Validate(); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	timeout, apiErr := api.ParseDuration("per_agent_timeout", req.PerAgentTimeout)
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	res, err := h.swarm.Solve(r.Context(), req.Task, swarm.Options{
		CandidateIDs:         req.CandidateIDs,
		ConvergenceThreshold: req.ConvergenceThreshold,
		MaxRounds:            req.MaxRounds,
		PerAgentTimeout:      timeout,
		ResetTrail:           req.ResetTrail,
	})
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, res)
}

// discussOptions 校验请求并转换为圆桌参数
func discussOptions(req *api.DiscussRequest) (roundtable.Options, *types.Error) {
	if err := req.Validate(); err != nil {
		return roundtable.Options{}, err
	}
	perAgent, err := api.ParseDuration("per_agent_timeout", req.PerAgentTimeout)
	if err != nil {
		return roundtable.Options{}, err
	}
	total, err := api.ParseDuration("total_timeout", req.TotalTimeout)
	if err != nil {
		return roundtable.Options{}, err
	}
	return roundtable.Options{
		AgentIDs:        req.AgentIDs,
		Rounds:          req.Rounds,
		SynthesizerID:   req.SynthesizerID,
		PerAgentTimeout: perAgent,
		TotalTimeout:    total,
		MaxAgents:       req.MaxAgents,
	}, nil
}
