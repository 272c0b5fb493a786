// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package agent 管理议会中的 Agent 池。

# 概述

Pool 从 Registry 加载 Agent 定义，为每个 Agent 维护关注点（focus）、
运行状态与固定容量的上下文窗口，并通过 llm.Completer 完成一次处理。

# 核心类型

  - Definition: 注册表中的 Agent 定义（系统提示词、默认模型、温度）
  - Agent: 池中的运行时 Agent，状态以 CAS 切换
  - Pool: 并发安全的 Agent 池，提供 Process、SetFocus、MarkOffline 等操作
  - Registry: Agent 定义来源，内置 MemoryRegistry 与 GormRegistry

# 处理流程

Process 按以下顺序组装一次调用：

 1. 以 CAS 将 Agent 从 idle 切换为 busy，失败返回 AGENT_UNAVAILABLE
 2. 合成关注点：系统提示词追加 "\n\n---\n" 与 profile 附加段，温度叠加后裁剪到 [0,1]
 3. 模型优先级：调用方指定 > profile 覆盖 > Agent 默认
 4. 请求由系统提示词、窗口历史与本轮消息组成，按 ContextTokens 裁剪
 5. 交给网关完成调用，本轮消息与回复写回上下文窗口

# 状态

	idle ⇄ busy
	  ↓ ↑
	offline

offline 的 Agent 不参与圆桌与蜂群，也拒绝直接处理。
*/
package agent
