// Package config 提供 AgentCouncil 的配置管理功能。
//
// 配置来源按优先级依次为默认值、YAML 文件和环境变量（前缀 AGENTCOUNCIL）。
// 模型链与 provider 列表是结构化切片，只能通过 YAML 配置。
package config
