package roundtable

import (
	"context"
	"fmt"
	"sort"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/types"
	"go.uber.org/zap"
)

// tier3Floor tier-3 Agent 入选所需的最低相关度
const tier3Floor = 0.4

// participant 一位入选的参与者
type participant struct {
	ID         string
	FocusID    string
	Tier       focus.Tier
	Score      float64
	BudgetHint int
}

// selectParticipants 选择参与者。
// 指定列表时过滤掉不可用的 Agent（记入 dropped）；未指定时自动选择。两种方式都截断到 maxAgents。
func (rt *Roundtable) selectParticipants(ctx context.Context, topic string, ids []string, maxAgents int) ([]participant, []Dropped, error) {
	infos := rt.pool.Agents()
	byID := make(map[string]agent.Info, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}

	if len(ids) > 0 {
		return rt.selectExplicit(ctx, ids, byID, maxAgents)
	}
	return rt.selectAuto(ctx, topic, infos, maxAgents), nil, nil
}

func (rt *Roundtable) selectExplicit(ctx context.Context, ids []string, byID map[string]agent.Info, maxAgents int) ([]participant, []Dropped, error) {
	var (
		out     []participant
		dropped []Dropped
		seen    = make(map[string]bool, len(ids))
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		info, ok := byID[id]
		if !ok {
			return nil, nil, types.NewAgentNotFoundError(id)
		}
		if info.Status != agent.StatusIdle {
			dropped = append(dropped, Dropped{
				AgentID: id,
				Code:    types.ErrAgentUnavailable,
				Reason:  fmt.Sprintf("agent is %s", info.Status),
			})
			continue
		}
		if len(out) == maxAgents {
			continue
		}

		p := participant{ID: id, FocusID: info.FocusID}
		if prof := rt.profile(ctx, id); prof != nil {
			p.Tier = prof.Tier
			p.BudgetHint = prof.TokenBudgetHint
		}
		out = append(out, p)
	}
	return out, dropped, nil
}

// selectAuto 分层自动选择：最佳 tier-1 → tier-2（评分 > 0）→ tier-3（评分 > tier3Floor）。
// 同分按 Agent ID 升序。
func (rt *Roundtable) selectAuto(ctx context.Context, topic string, infos []agent.Info, maxAgents int) []participant {
	var tiers [4][]participant
	for _, info := range infos {
		if info.Status != agent.StatusIdle || info.FocusID == "" {
			continue
		}
		prof := rt.profile(ctx, info.ID)
		if prof == nil || !prof.Enabled || !prof.Tier.Valid() {
			continue
		}
		tiers[prof.Tier] = append(tiers[prof.Tier], participant{
			ID:         info.ID,
			FocusID:    prof.ID,
			Tier:       prof.Tier,
			Score:      rt.scorer.Score(topic, prof.ID),
			BudgetHint: prof.TokenBudgetHint,
		})
	}
	for _, list := range tiers {
		sortCandidates(list)
	}

	out := make([]participant, 0, maxAgents)
	if len(tiers[focus.TierInitiator]) > 0 {
		out = append(out, tiers[focus.TierInitiator][0])
	}
	for _, c := range tiers[focus.TierSpecialist] {
		if len(out) >= maxAgents {
			break
		}
		if c.Score > 0 {
			out = append(out, c)
		}
	}
	for _, c := range tiers[focus.TierEphemeral] {
		if len(out) >= maxAgents {
			break
		}
		if c.Score > tier3Floor {
			out = append(out, c)
		}
	}
	if len(out) > maxAgents {
		out = out[:maxAgents]
	}

	rt.logger.Debug("participants auto-selected",
		zap.Int("candidates", len(tiers[1])+len(tiers[2])+len(tiers[3])),
		zap.Int("selected", len(out)),
	)
	return out
}

func sortCandidates(list []participant) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].ID < list[j].ID
	})
}

// profile 取不到画像时按无画像处理
func (rt *Roundtable) profile(ctx context.Context, agentID string) *focus.Profile {
	prof, err := rt.pool.Profile(ctx, agentID)
	if err != nil {
		rt.logger.Warn("focus profile unavailable during selection",
			zap.String("agent_id", agentID),
			zap.String("code", string(types.ErrProfileLoad)),
			zap.Error(err),
		)
		return nil
	}
	return prof
}

// contextBudget 参与者中最小的正数预算提示，0 表示不限制
func contextBudget(ps []participant) int {
	budget := 0
	for _, p := range ps {
		if p.BudgetHint > 0 && (budget == 0 || p.BudgetHint < budget) {
			budget = p.BudgetHint
		}
	}
	return budget
}
