// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、LLM 网关、
圆桌、Swarm、路由表与数据库连接池。

# 概述

Collector 通过 promauto 在默认 Registry 上注册指标，按 namespace
隔离。它直接实现各组件的观测接口，由装配代码注入：

  - llm.GatewayObserver：调用尝试、Token 用量、降级、熔断器状态。
  - routing.Observer：路由表重建次数与表大小。
  - roundtable.Observer：发言、掉线、轮次与会话结果。
  - swarm.Observer：投票轮次、收敛结果、信息素权重。

RegisterDB 为 database/sql 连接池注册 DBStats 指标。
*/
package metrics
