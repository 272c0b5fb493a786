// Package routing 维护 focus id 到关键词匹配器的路由表，并按专长相关度为文本打分。
//
// 路由表由启用的 focus profile 构建，整体通过 atomic.Pointer 原子替换，
// 读者永远看不到半成品。profile 来源不可用或为空时安装内置默认表。
//
// 打分公式为命中的不同关键词数 / 关键词总数（大小写不敏感的子串匹配），
// 结果在 [0, 1] 且随命中数单调不减。
package routing
