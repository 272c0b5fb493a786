package swarm

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/testutil"
	"github.com/BaSui01/agentcouncil/testutil/fixtures"
	"github.com/BaSui01/agentcouncil/testutil/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scorerFunc 测试用评分
type scorerFunc func(text, focusID string) float64

func (f scorerFunc) Score(text, focusID string) float64 { return f(text, focusID) }

func noSpecialty(string, string) float64 { return 0 }

func newPool(t *testing.T, provider *mocks.MockProvider) *agent.Pool {
	t.Helper()
	pool := agent.NewPool(agent.NewMemoryRegistry(fixtures.Agents()...),
		focus.NewMemoryStore(fixtures.Profiles()...),
		testutil.NewGateway(t, provider), agent.Config{DefaultModel: "m-primary"}, zap.NewNop())
	require.NoError(t, pool.Load(context.Background()))
	return pool
}

func newSwarm(t *testing.T, provider *mocks.MockProvider, scorer Scorer, opts ...Option) *Swarm {
	t.Helper()
	if scorer == nil {
		scorer = scorerFunc(noSpecialty)
	}
	return New(newPool(t, provider), scorer, DefaultConfig(), zap.NewNop(), opts...)
}

// speaker 从基础提示词 "You are <id>." 中取出 Agent ID
func speaker(req *llm.ChatRequest) string {
	line, _, _ := strings.Cut(testutil.SystemPrompt(req), "\n")
	return strings.TrimSuffix(strings.TrimPrefix(line, "You are "), ".")
}

// ballots 按 Agent 返回固定回复，未列出的 Agent 投 "abstain"
func ballots(byAgent map[string]string) *mocks.MockProvider {
	return mocks.NewMockProvider().WithResponseFunc(func(req *llm.ChatRequest) string {
		if v, ok := byAgent[speaker(req)]; ok {
			return v
		}
		return "VOTE: abstain"
	})
}

// recorder 记录观测回调
type recorder struct {
	mu      sync.Mutex
	rounds  []RoundTally
	results []*Result
}

func (r *recorder) ObserveSwarmRound(t RoundTally) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, t)
}

func (r *recorder) ObserveSwarmResult(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func weightSum(w map[string]float64) float64 {
	sum := 0.0
	for _, v := range w {
		sum += v
	}
	return sum
}

func proposalOf(t *testing.T, tally RoundTally, agentID string) Proposal {
	t.Helper()
	for _, p := range tally.Proposals {
		if p.AgentID == agentID {
			return p
		}
	}
	t.Fatalf("no proposal from %s in round %d", agentID, tally.Round)
	return Proposal{}
}
