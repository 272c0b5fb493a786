// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动、
优雅关闭与系统信号监听。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
agentcouncil serve 会创建两个 Manager：API 服务器（圆桌、Swarm、
Agent 接口）与独立端口上的 Prometheus metrics 服务器。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/StartTLS/Shutdown/Run/WaitForShutdown。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小、
    优雅关闭超时与可选 TLS 证书。APIConfig/MetricsConfig 从
    config.ServerConfig 构建。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务；配置证书时
    使用 tlsutil 的加固 TLS 配置。
  - 优雅关闭：Shutdown 在配置的超时内排空请求，可重复调用。
  - 生命周期：Run 阻塞到 ctx 结束或服务异常；WaitForShutdown
    监听 SIGINT/SIGTERM。
*/
package server
