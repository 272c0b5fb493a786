// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 AgentCouncil HTTP API 的请求处理器实现。

# 概述

handlers 包实现圆桌讨论、Swarm 求解、Agent 管理、观测接口与健康检查
的请求处理逻辑。所有 Handler 依赖小接口（Discusser、Solver、
AgentService 等），遵循标准 net/http 接口。

# 核心类型

  - CouncilHandler: 圆桌讨论与 Swarm 求解
  - StreamHandler: 基于 websocket 的圆桌事件流
  - AgentHandler: Agent 列表、直接调用、关注点切换、上下线
  - ObservabilityHandler: 熔断器、信息素、路由表
  - HealthHandler: /health、/healthz、/ready、/version
  - Response / ErrorInfo: 统一 JSON 响应结构

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteErr
  - 错误码到 HTTP 状态码映射集中在 mapErrorCodeToHTTPStatus
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - 就绪检查并发执行，任一失败返回 503
*/
package handlers
