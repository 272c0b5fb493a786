package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentcouncil/types"
)

// =============================================================================
// 🪑 圆桌讨论
// =============================================================================

// DiscussRequest 发起圆桌讨论
// @Description 圆桌讨论请求结构
type DiscussRequest struct {
	// 讨论主题
	Topic string `json:"topic" example:"Should we split the billing service?" binding:"required"`
	// 指定参与者，为空时按主题自动选择
	AgentIDs []string `json:"agent_ids,omitempty"`
	// 讨论轮数
	Rounds int `json:"rounds,omitempty" example:"2"`
	// 汇总者，默认第一位参与者
	SynthesizerID string `json:"synthesizer_id,omitempty"`
	// 单个 Agent 单轮超时（Go duration）
	PerAgentTimeout string `json:"per_agent_timeout,omitempty" example:"45s"`
	// 整场会话超时（Go duration）
	TotalTimeout string `json:"total_timeout,omitempty" example:"3m"`
	// 参与者上限
	MaxAgents int `json:"max_agents,omitempty" example:"5"`
}

// Validate 校验请求
func (r *DiscussRequest) Validate() *types.Error {
	if strings.TrimSpace(r.Topic) == "" {
		return types.NewInvalidRequestError("topic is required")
	}
	if r.Rounds < 0 || r.MaxAgents < 0 {
		return types.NewInvalidRequestError("rounds and max_agents must not be negative")
	}
	return nil
}

// =============================================================================
// 🐜 Swarm 求解
// =============================================================================

// SolveRequest 发起 Swarm 求解
// @Description Swarm 求解请求结构
type SolveRequest struct {
	// 任务描述
	Task string `json:"task" example:"Pick a primary datastore" binding:"required"`
	// 候选人，为空时使用全部在线 Agent
	CandidateIDs []string `json:"candidate_ids,omitempty"`
	// 收敛阈值（0-1）
	ConvergenceThreshold float64 `json:"convergence_threshold,omitempty" example:"0.6"`
	// 最大轮数
	MaxRounds int `json:"max_rounds,omitempty" example:"3"`
	// 单个 Agent 单轮超时（Go duration）
	PerAgentTimeout string `json:"per_agent_timeout,omitempty" example:"30s"`
	// 忽略已有信息素
	ResetTrail bool `json:"reset_trail,omitempty"`
}

// Validate 校验请求
func (r *SolveRequest) Validate() *types.Error {
	if strings.TrimSpace(r.Task) == "" {
		return types.NewInvalidRequestError("task is required")
	}
	if r.ConvergenceThreshold < 0 || r.ConvergenceThreshold > 1 {
		return types.NewInvalidRequestError("convergence_threshold must be within [0,1]")
	}
	if r.MaxRounds < 0 {
		return types.NewInvalidRequestError("max_rounds must not be negative")
	}
	return nil
}

// =============================================================================
// 🤖 Agent
// =============================================================================

// Message 对话消息
type Message struct {
	Role    types.Role `json:"role" example:"user"`
	Content string     `json:"content" example:"Review this schema"`
}

// ProcessRequest 直接调用单个 Agent
// @Description Agent 调用请求结构
type ProcessRequest struct {
	// 对话消息；只有一条用户消息时可改用 input
	Messages []Message `json:"messages,omitempty"`
	// 单条用户输入
	Input string `json:"input,omitempty" example:"Review this schema"`
	// 固定模型，跳过 profile 与 Agent 默认模型
	Model string `json:"model,omitempty" example:"gpt-4o-mini"`
	// 最大输出 token
	MaxTokens int `json:"max_tokens,omitempty" example:"512"`
}

// ToMessages 转换为内部消息
func (r *ProcessRequest) ToMessages() ([]types.Message, *types.Error) {
	if r.MaxTokens < 0 {
		return nil, types.NewInvalidRequestError("max_tokens must not be negative")
	}
	msgs := make([]types.Message, 0, len(r.Messages)+1)
	for i, m := range r.Messages {
		switch m.Role {
		case types.RoleUser, types.RoleAssistant:
		case "":
			m.Role = types.RoleUser
		default:
			return nil, types.NewInvalidRequestError(fmt.Sprintf("messages[%d]: role must be user or assistant", i))
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, types.NewInvalidRequestError(fmt.Sprintf("messages[%d]: content is required", i))
		}
		msgs = append(msgs, types.NewMessage(m.Role, m.Content))
	}
	if strings.TrimSpace(r.Input) != "" {
		msgs = append(msgs, types.NewUserMessage(r.Input))
	}
	if len(msgs) == 0 {
		return nil, types.NewInvalidRequestError("messages or input is required")
	}
	return msgs, nil
}

// SetFocusRequest 切换 Agent 关注点，空字符串表示清除
type SetFocusRequest struct {
	FocusID string `json:"focus_id" example:"security"`
}

// =============================================================================
// 🔧 辅助
// =============================================================================

// ParseDuration 解析可选的 Go duration 字段，空串返回 0
func ParseDuration(field, value string) (time.Duration, *types.Error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, types.NewInvalidRequestError(fmt.Sprintf("%s: invalid duration %q", field, value))
	}
	return d, nil
}
