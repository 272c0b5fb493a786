// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 维护 agents 与 focus_profiles 两张表的 Schema，
支持 PostgreSQL、MySQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌在二进制中。列定义与
agent.AgentRecord、focus.ProfileRecord 的 GORM 模型保持一致，
GORM 侧只读写，不做 AutoMigrate。SQLite 通过驱动名 "sqlite"
打开连接，驱动由调用方提供：服务进程经 internal/database 链接
glebarez/sqlite，测试链接 modernc.org/sqlite。

# 核心类型

  - Migrator / DefaultMigrator：Up、Down、Steps、Goto、Force、
    Version、Status、Info 等操作。
  - CLI：`agentcouncil migrate <command>` 的解析与输出。
  - NewMigratorFromConfig：从 config.DatabaseConfig 构造迁移器。
*/
package migration
