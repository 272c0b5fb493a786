// Copyright (c) AgentCouncil Authors.
// Licensed under the MIT License.

/*
Package focus 定义 Agent 的关注点画像（focus profile）及其存储。

# 概述

FocusProfile 为 Agent 叠加语气、委派层级、token 预算、温度偏移、
专长关键词与系统提示词附加段。附加段只会追加在基础提示词之后
（以 PromptSeparator 分隔），从不替换。

# 核心类型

  - Profile: 关注点画像
  - Tier: 委派层级（1 发起者 / 2 专家 / 3 临时）
  - Store: 画像来源接口（ListEnabled / Get）
  - MemoryStore: 进程内实现，用于种子数据与测试
  - GormStore: 关系库实现（postgres / mysql / sqlite）
  - MongoStore: MongoDB 文档实现
  - CachedStore: Redis 读穿缓存包装

# 组合规则

  - ComposePrompt：base 或 base + "\n\n---\n" + addon
  - ClampTemperature：结果限制在 [0, 1]
  - BudgetCap：调用方值与画像 hint 取较小者，任一方为 0 视为未设置
  - ResolveModel：调用方 → 画像覆盖 → Agent 默认
*/
package focus
