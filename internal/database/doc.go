// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 打开 agents / focus_profiles 所在的关系库并管理连接池。

# 概述

Open 根据 config.DatabaseConfig 选择 GORM 方言（postgres、mysql、
纯 Go 的 glebarez sqlite），返回 PoolManager。PoolManager 负责连接池
参数、后台探活、就绪检查（Name/Check）与带重试的事务，
agent.GormRegistry 与 focus.GormStore 共享它持有的 *gorm.DB。

表结构由 internal/migration 维护。
*/
package database
