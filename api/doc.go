// Package api 定义 AgentCouncil HTTP API 的请求结构。
//
// # API 概览
//
// AgentCouncil 提供以下 RESTful 接口：
//   - 圆桌讨论（同步与 websocket 流式）
//   - Swarm 信息素加权投票求解
//   - 单个 Agent 的直接调用与关注点切换
//   - 熔断器、信息素、路由表的观测接口
//   - 健康检查与版本信息
//
// # 认证
//
// 配置了 API Key 时，请求需携带 X-API-Key 头：
//
//	X-API-Key: your-api-key
//
// websocket 客户端在 allow_query_api_key 开启时可使用 ?api_key= 参数。
// 配置了 JWT 时使用 Authorization: Bearer <token>。
//
// # Base URL
//
//	http://localhost:8080/api/v1
//
// 响应体统一为 handlers.Response：success、data、error、timestamp、request_id。
package api
