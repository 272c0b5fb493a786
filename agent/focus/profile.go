package focus

import (
	"fmt"
	"strings"
)

// Tier 委派层级
type Tier int

const (
	TierInitiator  Tier = 1 // 可担任发起者
	TierSpecialist Tier = 2 // 专家
	TierEphemeral  Tier = 3 // 临时 / 窄领域
)

// String 返回层级名称
func (t Tier) String() string {
	switch t {
	case TierInitiator:
		return "initiator"
	case TierSpecialist:
		return "specialist"
	case TierEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid 是否为已知层级
func (t Tier) Valid() bool {
	return t >= TierInitiator && t <= TierEphemeral
}

// Profile 关注点画像
type Profile struct {
	ID               string   `json:"id" yaml:"id" bson:"_id"`
	DisplayName      string   `json:"display_name" yaml:"display_name" bson:"display_name"`
	Tone             []string `json:"tone,omitempty" yaml:"tone" bson:"tone,omitempty"`
	Tier             Tier     `json:"tier" yaml:"tier" bson:"tier"`
	TokenBudgetHint  int      `json:"token_budget_hint,omitempty" yaml:"token_budget_hint" bson:"token_budget_hint"`
	TemperatureDelta float64  `json:"temperature_delta,omitempty" yaml:"temperature_delta" bson:"temperature_delta"`
	Keywords         []string `json:"keywords,omitempty" yaml:"keywords" bson:"keywords,omitempty"`
	PromptAddon      string   `json:"prompt_addon,omitempty" yaml:"prompt_addon" bson:"prompt_addon,omitempty"`
	ModelOverride    string   `json:"model_override,omitempty" yaml:"model_override" bson:"model_override,omitempty"`
	Enabled          bool     `json:"enabled" yaml:"enabled" bson:"enabled"`
	// AutoSkills 技能句柄，核心层只透传不执行
	AutoSkills []string `json:"auto_skills,omitempty" yaml:"auto_skills" bson:"auto_skills,omitempty"`
}

// Validate 校验画像字段
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("focus profile id is required")
	}
	if !p.Tier.Valid() {
		return fmt.Errorf("focus profile %q: invalid tier %d", p.ID, int(p.Tier))
	}
	if p.TokenBudgetHint < 0 {
		return fmt.Errorf("focus profile %q: token_budget_hint must be >= 0", p.ID)
	}
	return nil
}

// Clone 深拷贝，避免调用方修改缓存中的切片
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Tone = append([]string(nil), p.Tone...)
	cp.Keywords = append([]string(nil), p.Keywords...)
	cp.AutoSkills = append([]string(nil), p.AutoSkills...)
	return &cp
}
