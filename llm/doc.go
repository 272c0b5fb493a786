// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package llm 提供 Provider 抽象与带熔断的模型网关。

# 核心类型

  - Provider: 单个 LLM 端点，providers/openaicompat 提供 OpenAI 兼容实现
  - Completer: Agent 池依赖的最小接口
  - Gateway: 按优先级排列的模型链，每个模型独立熔断、限流与重试

# 回退

Gateway.Complete 先尝试调用方指定的模型，失败后按链上顺序尝试其余模型。
熔断器打开的模型直接跳过；全部失败时返回 ALL_MODELS_EXHAUSTED（HTTP 503），
Cause 中保留每个模型的失败原因。
*/
package llm
