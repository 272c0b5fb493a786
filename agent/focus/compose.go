package focus

import (
	"math"
	"strings"
)

// PromptSeparator 基础提示词与画像附加段之间的分隔符
const PromptSeparator = "\n\n---\n"

// ComposePrompt 组合系统提示词，附加段只追加不替换
func ComposePrompt(base, addon string) string {
	if strings.TrimSpace(addon) == "" {
		return base
	}
	return base + PromptSeparator + addon
}

// ClampTemperature 将温度限制在 [0, 1]
func ClampTemperature(t float64) float64 {
	switch {
	case math.IsNaN(t), t < 0:
		return 0
	case t > 1:
		return 1
	default:
		return t
	}
}

// BudgetCap 计算有效的最大输出 token。
// hint 为 0 时返回 caller；caller 为 0 时返回 hint；否则取两者较小值。
func BudgetCap(caller int, p *Profile) int {
	if caller < 0 {
		caller = 0
	}
	hint := 0
	if p != nil && p.TokenBudgetHint > 0 {
		hint = p.TokenBudgetHint
	}
	switch {
	case hint == 0:
		return caller
	case caller == 0:
		return hint
	default:
		return min(caller, hint)
	}
}

// ResolveModel 模型优先级：调用方 → 画像覆盖 → Agent 默认
func ResolveModel(caller string, p *Profile, agentDefault string) string {
	if caller != "" {
		return caller
	}
	if p != nil && p.ModelOverride != "" {
		return p.ModelOverride
	}
	return agentDefault
}

// Base Agent 自身的默认参数
type Base struct {
	SystemPrompt string
	Temperature  float64
	Model        string
	MaxTokens    int
}

// Overrides 调用方覆盖项，零值表示未设置
type Overrides struct {
	Model     string
	MaxTokens int
}

// Effective 叠加画像后的最终调用参数
type Effective struct {
	SystemPrompt string
	Temperature  float64
	Model        string
	MaxTokens    int
}

// Apply 按组合规则叠加画像，p 为 nil 时仅应用调用方覆盖与温度截断
func Apply(base Base, p *Profile, o Overrides) Effective {
	var addon string
	var delta float64
	if p != nil {
		addon = p.PromptAddon
		delta = p.TemperatureDelta
	}

	maxTokens := o.MaxTokens
	if maxTokens <= 0 {
		maxTokens = base.MaxTokens
	}

	return Effective{
		SystemPrompt: ComposePrompt(base.SystemPrompt, addon),
		Temperature:  ClampTemperature(base.Temperature + delta),
		Model:        ResolveModel(o.Model, p, base.Model),
		MaxTokens:    BudgetCap(maxTokens, p),
	}
}
