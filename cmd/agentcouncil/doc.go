// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package main 提供 AgentCouncil 服务端程序入口。

# 概述

cmd/agentcouncil 是多智能体议会服务的可执行入口，提供 HTTP API、
数据库迁移、种子数据导入、健康检查和版本查询等子命令。

# 核心类型

  - Server: 组装存储、LLM 网关、Agent 池、圆桌与蜂群，管理 API 与 Metrics 双端口
  - Middleware: HTTP 中间件函数签名 func(http.Handler) http.Handler
  - Seed: YAML 种子文件（agents 与 profiles）

# 主要能力

  - 子命令：serve、migrate、seed、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、RequestLogger、
    Metrics、CORS，按配置启用 APIKeyAuth、JWTAuth、RateLimiter
  - 存储：profiles 可来自数据库、MongoDB 或内存，可选 Redis 缓存
  - 圆桌流式接口：/api/v1/roundtable/stream（WebSocket）
  - 优雅关闭：信号监听后停止后台任务，关闭 HTTP 与 Metrics，最后释放存储
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
