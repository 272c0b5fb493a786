package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/agent/roundtable"
	"github.com/BaSui01/agentcouncil/agent/routing"
	"github.com/BaSui01/agentcouncil/agent/swarm"
	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/testutil"
	"github.com/BaSui01/agentcouncil/testutil/fixtures"
	"github.com/BaSui01/agentcouncil/testutil/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ballot 每位 Agent 都投同一票，圆桌里也可作为普通发言
const ballot = "VOTE: use postgres\nCONFIDENCE: 0.9\nREASONING: durable and well known"

// testCouncil 由 fixtures 组装的完整议会与路由
type testCouncil struct {
	pool     *agent.Pool
	router   *routing.Router
	gateway  *llm.Gateway
	rt       *roundtable.Roundtable
	swarm    *swarm.Swarm
	provider *mocks.MockProvider
	mux      *http.ServeMux
}

func newTestCouncil(t *testing.T, provider *mocks.MockProvider) *testCouncil {
	t.Helper()
	ctx := context.Background()
	if provider == nil {
		provider = mocks.NewMockProvider().WithResponse(ballot)
	}

	profiles := focus.NewMemoryStore(fixtures.Profiles()...)
	gw := testutil.NewGateway(t, provider, "m-primary", "m-secondary")
	pool := agent.NewPool(agent.NewMemoryRegistry(fixtures.Agents()...), profiles, gw,
		agent.Config{DefaultModel: "m-primary"}, zap.NewNop())
	require.NoError(t, pool.Load(ctx))

	router := routing.NewRouter(profiles, zap.NewNop())
	require.NoError(t, router.Refresh(ctx))

	c := &testCouncil{
		pool:     pool,
		router:   router,
		gateway:  gw,
		rt:       roundtable.New(pool, router, roundtable.DefaultConfig(), zap.NewNop()),
		swarm:    swarm.New(pool, router, swarm.DefaultConfig(), zap.NewNop()),
		provider: provider,
	}

	council := NewCouncilHandler(c.rt, c.swarm, zap.NewNop())
	agents := NewAgentHandler(pool, zap.NewNop())
	obs := NewObservabilityHandler(gw, c.swarm, router, zap.NewNop())
	stream := NewStreamHandler(c.rt, nil, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/roundtable/discuss", council.HandleDiscuss)
	mux.HandleFunc("GET /api/v1/roundtable/stream", stream.HandleStream)
	mux.HandleFunc("POST /api/v1/swarm/solve", council.HandleSolve)
	mux.HandleFunc("GET /api/v1/agents", agents.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", agents.HandleGetAgent)
	mux.HandleFunc("POST /api/v1/agents/{id}/process", agents.HandleProcess)
	mux.HandleFunc("PUT /api/v1/agents/{id}/focus", agents.HandleSetFocus)
	mux.HandleFunc("POST /api/v1/agents/{id}/offline", agents.HandleSetStatus(false))
	mux.HandleFunc("POST /api/v1/agents/{id}/online", agents.HandleSetStatus(true))
	mux.HandleFunc("GET /api/v1/observability/breakers", obs.HandleBreakers)
	mux.HandleFunc("POST /api/v1/observability/breakers/{model}/reset", obs.HandleResetBreaker)
	mux.HandleFunc("GET /api/v1/observability/pheromones", obs.HandlePheromones)
	mux.HandleFunc("GET /api/v1/observability/routing", obs.HandleRouting)
	mux.HandleFunc("POST /api/v1/observability/routing/refresh", obs.HandleRefreshRouting)
	c.mux = mux
	return c
}

// do 发起请求，body 非 nil 时编码为 JSON
func (c *testCouncil) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, r)
	return w
}

// decodeData 解码成功响应中的 data
func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Success bool       `json:"success"`
		Data    T          `json:"data"`
		Error   *ErrorInfo `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success, "error: %+v", resp.Error)
	return resp.Data
}

// decodeErrorCode 解码错误响应中的错误码
func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}
