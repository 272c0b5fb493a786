// 版权所有 2024 AgentCouncil Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力。

# 概述

本包封装 go-redis 客户端，为 focus profile 读穿缓存与蜂群信息素轨迹
提供统一的读写接口。Manager 负责连接生命周期管理，包括初始化、
健康检查与优雅关闭，所有键自动加上 KeyPrefix 命名空间。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Ping 基础操作，
    以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、密码、键前缀、连接池与默认 TTL。
  - Stats：进程内命中 / 未命中计数。

# 错误语义

未命中返回 ErrCacheMiss（用 IsCacheMiss 判断），关闭后的调用返回 ErrClosed。
*/
package cache
