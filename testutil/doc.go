// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package testutil 提供 AgentCouncil 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 网关辅助: NewGateway 以 Mock Provider 搭建真实的 llm.Gateway，
    SystemPrompt / LastContent 便于按请求内容分派响应
  - 断言工具: AssertMessagesEqual / AssertJSONEqual / AssertContains /
    AssertEventuallyTrue
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockProvider（LLM Provider），支持 Builder 模式、
    延迟与错误注入
  - testutil/fixtures: 议会测试数据，预置 focus 画像与 Agent 定义

本包不依赖 agent 包，agent 包自身的内部测试也可以使用。
*/
package testutil
