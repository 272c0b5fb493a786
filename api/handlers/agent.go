package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/api"
	"github.com/BaSui01/agentcouncil/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🤖 Agent 管理 Handler
// =============================================================================

// AgentService Agent 池对外能力
type AgentService interface {
	Agents() []agent.Info
	Get(id string) (*agent.Agent, bool)
	Process(ctx context.Context, agentID string, messages []types.Message, opts agent.Options) (*agent.Response, error)
	SetFocus(ctx context.Context, agentID, focusID string) error
	MarkOffline(agentID string) error
	MarkOnline(agentID string) error
}

// AgentHandler Agent 管理处理器
type AgentHandler struct {
	pool   AgentService
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 处理器
func NewAgentHandler(pool AgentService, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		pool:   pool,
		logger: logger.With(zap.String("handler", "agent")),
	}
}

// HandleListAgents 列出全部 Agent 及状态
// @Summary 列出 Agent
// @Tags Agent
// @Produce json
// @Success 200 {object} Response{data=[]agent.Info}
// @Router /api/v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.pool.Agents())
}

// HandleGetAgent 查询单个 Agent
// @Summary 查询 Agent
// @Tags Agent
// @Produce json
// @Param id path string true "Agent ID"
// @Success 200 {object} Response{data=agent.Info}
// @Failure 404 {object} Response
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := h.pool.Get(id)
	if !ok {
		WriteError(w, types.NewAgentNotFoundError(id), h.logger)
		return
	}
	WriteSuccess(w, a.Info())
}

// HandleProcess 直接调用单个 Agent（叠加其 focus profile）
// @Summary 调用 Agent
// @Tags Agent
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param request body api.ProcessRequest true "调用请求"
// @Success 200 {object} Response{data=agent.Response}
// @Failure 409 {object} Response "Agent 忙或离线"
// @Failure 503 {object} Response "全部模型不可用"
// @Router /api/v1/agents/{id}/process [post]
func (h *AgentHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.ProcessRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	msgs, apiErr := req.ToMessages()
	if apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	resp, err := h.pool.Process(r.Context(), r.PathValue("id"), msgs, agent.Options{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, resp)
}

// HandleSetFocus 切换 Agent 关注点
// @Summary 切换关注点
// @Tags Agent
// @Accept json
// @Produce json
// @Param id path string true "Agent ID"
// @Param request body api.SetFocusRequest true "关注点"
// @Success 200 {object} Response{data=agent.Info}
// @Router /api/v1/agents/{id}/focus [put]
func (h *AgentHandler) HandleSetFocus(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.SetFocusRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	id := r.PathValue("id")
	if err := h.pool.SetFocus(r.Context(), id, req.FocusID); err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	h.writeInfo(w, id)
}

// HandleSetStatus 标记 Agent 上线或离线，online 为 false 时离线
func (h *AgentHandler) HandleSetStatus(online bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		mark := h.pool.MarkOffline
		if online {
			mark = h.pool.MarkOnline
		}
		if err := mark(id); err != nil {
			WriteErr(w, err, h.logger)
			return
		}
		h.writeInfo(w, id)
	}
}

func (h *AgentHandler) writeInfo(w http.ResponseWriter, id string) {
	a, ok := h.pool.Get(id)
	if !ok {
		WriteError(w, types.NewAgentNotFoundError(id), h.logger)
		return
	}
	WriteSuccess(w, a.Info())
}
