package roundtable

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/agent/routing"
	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/testutil"
	"github.com/BaSui01/agentcouncil/testutil/fixtures"
	"github.com/BaSui01/agentcouncil/testutil/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// broadTopic 命中 lead / security / performance / data / ux / k8s 的关键词
const broadTopic = "Design the architecture: auth token handling, latency budget, database schema and user flows on kubernetes with helm"

type council struct {
	pool     *agent.Pool
	router   *routing.Router
	provider *mocks.MockProvider
	rt       *Roundtable
}

func newCouncil(t *testing.T, provider *mocks.MockProvider, cfg Config, opts ...Option) *council {
	t.Helper()
	ctx := context.Background()

	profiles := focus.NewMemoryStore(fixtures.Profiles()...)
	pool := agent.NewPool(agent.NewMemoryRegistry(fixtures.Agents()...), profiles,
		testutil.NewGateway(t, provider), agent.Config{DefaultModel: "m-primary"}, zap.NewNop())
	require.NoError(t, pool.Load(ctx))

	router := routing.NewRouter(profiles, zap.NewNop())
	require.NoError(t, router.Refresh(ctx))

	return &council{
		pool:     pool,
		router:   router,
		provider: provider,
		rt:       New(pool, router, cfg, zap.NewNop(), opts...),
	}
}

// speaker 从基础提示词 "You are <id>." 中取出 Agent ID
func speaker(req *llm.ChatRequest) string {
	line, _, _ := strings.Cut(testutil.SystemPrompt(req), "\n")
	return strings.TrimSuffix(strings.TrimPrefix(line, "You are "), ".")
}

func isSynthesis(req *llm.ChatRequest) bool {
	return strings.Contains(testutil.LastContent(req), "Synthesize the discussion")
}

func reply(req *llm.ChatRequest) string {
	if isSynthesis(req) {
		return "synthesis by " + speaker(req)
	}
	return "view of " + speaker(req)
}

func councilProvider() *mocks.MockProvider {
	return mocks.NewMockProvider().WithResponseFunc(reply)
}

// stallingProvider 对 stall 返回 true 的请求一直阻塞到 ctx 结束
func stallingProvider(stall func(req *llm.ChatRequest) bool) *mocks.MockProvider {
	return mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if stall(req) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &llm.ChatResponse{Content: reply(req)}, nil
	})
}

// eventRecorder 记录事件，可并发调用
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) count(t EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}
