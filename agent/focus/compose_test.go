package focus

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestComposePrompt(t *testing.T) {
	tests := []struct {
		name  string
		base  string
		addon string
		want  string
	}{
		{"no addon", "You are Ada.", "", "You are Ada."},
		{"blank addon", "You are Ada.", "  \n", "You are Ada."},
		{"addon appended", "You are Ada.", "Focus on risk.", "You are Ada.\n\n---\nFocus on risk."},
		{"empty base keeps separator", "", "Focus on risk.", "\n\n---\nFocus on risk."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposePrompt(tt.base, tt.addon))
		})
	}
}

func TestComposePrompt_NeverLosesBase(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := rapid.String().Draw(rt, "base")
		addon := rapid.String().Draw(rt, "addon")

		got := ComposePrompt(base, addon)
		if !strings.HasPrefix(got, base) {
			rt.Fatalf("base prompt lost: %q -> %q", base, got)
		}
		if strings.TrimSpace(addon) != "" && got != base+PromptSeparator+addon {
			rt.Fatalf("addon not appended after separator: %q", got)
		}
	})
}

func TestClampTemperature(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampTemperature(tt.in), "input %v", tt.in)
	}

	rapid.Check(t, func(rt *rapid.T) {
		base := rapid.Float64Range(-5, 5).Draw(rt, "base")
		delta := rapid.Float64Range(-5, 5).Draw(rt, "delta")
		got := ClampTemperature(base + delta)
		if got < 0 || got > 1 {
			rt.Fatalf("temperature %v out of range", got)
		}
	})
}

func TestBudgetCap(t *testing.T) {
	hint := func(n int) *Profile { return &Profile{ID: "p", Tier: TierSpecialist, TokenBudgetHint: n} }

	tests := []struct {
		name    string
		caller  int
		profile *Profile
		want    int
	}{
		{"no profile", 800, nil, 800},
		{"zero hint", 800, hint(0), 800},
		{"caller unset uses hint", 0, hint(300), 300},
		{"caller below hint", 200, hint(300), 200},
		{"caller above hint", 900, hint(300), 300},
		{"both unset", 0, hint(0), 0},
		{"negative caller treated as unset", -1, hint(300), 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BudgetCap(tt.caller, tt.profile))
		})
	}
}

func TestResolveModel(t *testing.T) {
	override := &Profile{ModelOverride: "profile-model"}

	assert.Equal(t, "caller", ResolveModel("caller", override, "agent"))
	assert.Equal(t, "profile-model", ResolveModel("", override, "agent"))
	assert.Equal(t, "agent", ResolveModel("", &Profile{}, "agent"))
	assert.Equal(t, "agent", ResolveModel("", nil, "agent"))
}

func TestApply(t *testing.T) {
	base := Base{SystemPrompt: "You are Ada.", Temperature: 0.9, Model: "gpt-4o-mini", MaxTokens: 1000}

	t.Run("without profile", func(t *testing.T) {
		eff := Apply(base, nil, Overrides{})
		assert.Equal(t, Effective{
			SystemPrompt: "You are Ada.",
			Temperature:  0.9,
			Model:        "gpt-4o-mini",
			MaxTokens:    1000,
		}, eff)
	})

	t.Run("profile layered on top", func(t *testing.T) {
		p := &Profile{
			ID:               "critic",
			Tier:             TierSpecialist,
			PromptAddon:      "Challenge every assumption.",
			TemperatureDelta: 0.3,
			TokenBudgetHint:  400,
			ModelOverride:    "deepseek-chat",
		}
		eff := Apply(base, p, Overrides{})
		assert.Equal(t, "You are Ada.\n\n---\nChallenge every assumption.", eff.SystemPrompt)
		assert.Equal(t, 1.0, eff.Temperature)
		assert.Equal(t, "deepseek-chat", eff.Model)
		assert.Equal(t, 400, eff.MaxTokens)
	})

	t.Run("caller overrides", func(t *testing.T) {
		p := &Profile{ID: "critic", Tier: TierSpecialist, TokenBudgetHint: 400, ModelOverride: "deepseek-chat"}
		eff := Apply(base, p, Overrides{Model: "pinned", MaxTokens: 250})
		assert.Equal(t, "pinned", eff.Model)
		assert.Equal(t, 250, eff.MaxTokens)
	})
}
