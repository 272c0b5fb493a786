// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package roundtable 实现多轮圆桌讨论协议。

# 概述

一次 Discuss 调用经历 selecting → round(1..N) → synthesizing → done | failed：

  - 选择参与者：调用方指定 AgentIDs，或按 Router 评分自动选择
    （最佳 tier-1 优先，其次 tier-2 评分 > 0，最后 tier-3 评分 > 0.4），
    总数不超过 MaxAgents；少于 2 人时在任何 LLM 调用之前失败。
  - 每一轮所有参与者并发发言，共享累积的讨论记录；记录按参与者中
    最小的 token 预算裁剪。单个 Agent 超时只影响它自己。
  - 所有轮次结束后由汇总者（默认第一位参与者）生成最终结论。
  - TotalTimeout 到期时，至少完成一轮则返回 Partial 结果，否则返回
    SESSION_TIMEOUT。

# 观测

Observer 接收会话生命周期事件，可在 Roundtable 级别（指标）或单次
调用级别（流式推送）注册。事件可能从多个 goroutine 并发发出。
*/
package roundtable
