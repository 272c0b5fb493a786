package llm

import (
	"context"
	"time"

	"github.com/BaSui01/agentcouncil/types"
)

// ChatRequest 补全请求，对应外部补全 API 的 {model, messages, temperature, max_tokens}
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float32         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// ChatResponse 补全响应
type ChatResponse struct {
	ID           string      `json:"id"`
	Provider     string      `json:"provider"`
	Model        string      `json:"model"`
	Content      string      `json:"content"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        types.Usage `json:"usage"`
	CreatedAt    time.Time   `json:"created_at"`

	// Attempted 网关按顺序尝试过的模型（最后一个为实际应答模型）
	Attempted []string `json:"attempted,omitempty"`
}

// Provider 外部补全服务
type Provider interface {
	// Completion 发起一次非流式补全；失败时返回 *types.Error
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 名称
	Name() string
}

// HealthChecker 可选的健康检查能力
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Completer 是网关对上层暴露的调用面，AgentPool 依赖此接口
type Completer interface {
	// CompleteWithFallback 按优先级遍历模型链
	CompleteWithFallback(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Complete 优先使用指定模型，失败后继续遍历其余模型
	Complete(ctx context.Context, model string, req *ChatRequest) (*ChatResponse, error)
}
