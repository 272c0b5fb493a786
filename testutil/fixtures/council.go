// =============================================================================
// 📦 测试数据工厂 - 议会测试数据
// =============================================================================
// 预置的 focus 画像与 Agent 定义。每个 Agent 的基础提示词形如
// "You are <id>."，Mock Provider 可据此区分调用方。
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
)

// Profiles 返回一组覆盖三个层级的画像
func Profiles() []*focus.Profile {
	return []*focus.Profile{
		{ID: "lead", DisplayName: "Lead", Tier: focus.TierInitiator, Enabled: true,
			Keywords: []string{"architecture", "design", "scalability"}, PromptAddon: "Drive the discussion to a decision."},
		{ID: "finance", DisplayName: "Finance", Tier: focus.TierInitiator, Enabled: true,
			Keywords: []string{"budget", "cost"}},
		{ID: "security", DisplayName: "Security", Tier: focus.TierSpecialist, Enabled: true,
			Keywords: []string{"security", "auth", "token"}, TokenBudgetHint: 400, PromptAddon: "Think like an attacker."},
		{ID: "performance", DisplayName: "Performance", Tier: focus.TierSpecialist, Enabled: true,
			Keywords: []string{"latency", "performance"}},
		{ID: "data", DisplayName: "Data", Tier: focus.TierSpecialist, Enabled: true,
			Keywords: []string{"database", "schema"}, TokenBudgetHint: 150},
		{ID: "ux", DisplayName: "UX", Tier: focus.TierSpecialist, Enabled: true,
			Keywords: []string{"design", "user"}},
		{ID: "k8s", DisplayName: "Kubernetes", Tier: focus.TierEphemeral, Enabled: true,
			Keywords: []string{"kubernetes", "helm"}},
		{ID: "legacy", DisplayName: "Legacy", Tier: focus.TierSpecialist, Enabled: false,
			Keywords: []string{"design", "database"}},
	}
}

// Agents 返回与 Profiles 配套的 Agent 定义，a-off 离线，a-plain 没有关注点
func Agents() []agent.Definition {
	defs := []agent.Definition{
		{ID: "a-lead", FocusID: "lead", Temperature: 0.5},
		{ID: "a-finance", FocusID: "finance", Temperature: 0.4},
		{ID: "a-sec", FocusID: "security", Temperature: 0.3},
		{ID: "a-perf", FocusID: "performance", Temperature: 0.4},
		{ID: "a-data", FocusID: "data", Temperature: 0.4},
		{ID: "a-ux", FocusID: "ux", Temperature: 0.7},
		{ID: "a-k8s", FocusID: "k8s", Temperature: 0.4},
		{ID: "a-legacy", FocusID: "legacy", Temperature: 0.4},
		{ID: "a-plain", Temperature: 0.5},
		{ID: "a-off", FocusID: "security", Offline: true},
	}
	for i := range defs {
		defs[i].Name = defs[i].ID
		defs[i].SystemPrompt = "You are " + defs[i].ID + "."
	}
	return defs
}
