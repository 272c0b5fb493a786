package agent

import "errors"

var (
	// ErrAgentNotFound 注册表中不存在该 Agent
	ErrAgentNotFound = errors.New("agent not found")

	// ErrGatewayNotSet 未配置 LLM 网关
	ErrGatewayNotSet = errors.New("llm gateway not set")
)
