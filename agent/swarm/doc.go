// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package swarm 实现信息素加权的迭代投票共识。

# 投票

每一轮所有空闲候选人并发给出 VOTE / CONFIDENCE / REASONING。
一票的权重为：

	pheromone(agent) × (1 + 0.3 × specialty(task, focus)) × confidence

提案经规范化（小写、去标点、合并空白）后相同即归入同一簇，簇按
权重降序、规范化文本升序排列，结果与调用顺序无关。领先簇的权重
占比达到阈值即收敛；达到 MaxRounds 仍未收敛时返回当前最佳答案并
标记 Converged=false，不视为错误。

# 信息素

每轮结束后与领先簇一致的 Agent 权重乘以 (1+reinforce)，其余乘以
(1-decay)，截断到 [MinWeight, MaxWeight] 后重新归一化为总和 1。
权重按候选人集合通过 TrailStore 跨调用保存（默认进程内，可选
Redis）。每次调用载入后先在当前候选人上重新归一化，新加入的 Agent
以现有权重的均值进入；Options.ResetTrail 强制从均匀分布开始。
*/
package swarm
