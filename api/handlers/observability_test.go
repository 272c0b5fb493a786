package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/agentcouncil/agent/routing"
	"github.com/BaSui01/agentcouncil/api"
	"github.com/BaSui01/agentcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// breakerView circuitbreaker.Snapshot 的 JSON 形态
type breakerView struct {
	Model string `json:"model"`
	State string `json:"state"`
	Trips int    `json:"trips"`
}

func TestObservabilityHandler_Breakers(t *testing.T) {
	c := newTestCouncil(t, nil)

	w := c.do(t, http.MethodGet, "/api/v1/observability/breakers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	list := decodeData[[]breakerView](t, w)
	require.Len(t, list, 2)
	for _, b := range list {
		assert.Equal(t, "closed", b.State)
	}
}

func TestObservabilityHandler_ResetBreaker(t *testing.T) {
	c := newTestCouncil(t, nil)

	t.Run("known model", func(t *testing.T) {
		w := c.do(t, http.MethodPost, "/api/v1/observability/breakers/m-secondary/reset", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeData[[]breakerView](t, w), 2)
	})

	t.Run("unknown model", func(t *testing.T) {
		w := c.do(t, http.MethodPost, "/api/v1/observability/breakers/m-ghost/reset", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, string(types.ErrModelNotFound), decodeErrorCode(t, w))
	})
}

func TestObservabilityHandler_Pheromones(t *testing.T) {
	c := newTestCouncil(t, nil)

	w := c.do(t, http.MethodGet, "/api/v1/observability/pheromones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeData[map[string]map[string]float64](t, w))

	w = c.do(t, http.MethodPost, "/api/v1/swarm/solve", api.SolveRequest{
		Task:         "pick a primary datastore",
		CandidateIDs: []string{"a-lead", "a-sec"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.do(t, http.MethodGet, "/api/v1/observability/pheromones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	trails := decodeData[map[string]map[string]float64](t, w)
	require.Len(t, trails, 1)
	for _, weights := range trails {
		assert.Len(t, weights, 2)
		assert.InDelta(t, 1.0, weights["a-lead"]+weights["a-sec"], 1e-9)
	}
}

// routingView routing.Stats 的 JSON 形态
type routingView struct {
	Size      int      `json:"size"`
	Source    string   `json:"source"`
	Refreshes uint64   `json:"refreshes"`
	FocusIDs  []string `json:"focus_ids"`
}

func TestObservabilityHandler_Routing(t *testing.T) {
	c := newTestCouncil(t, nil)

	w := c.do(t, http.MethodGet, "/api/v1/observability/routing", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stats := decodeData[routingView](t, w)
	assert.Equal(t, string(routing.SourceStore), stats.Source)
	assert.Contains(t, stats.FocusIDs, "security")
	assert.NotContains(t, stats.FocusIDs, "legacy")

	w = c.do(t, http.MethodPost, "/api/v1/observability/routing/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

// brokenTable 刷新总是失败的路由表
type brokenTable struct{}

func (brokenTable) Stats() routing.Stats {
	return routing.Stats{Size: 3, Source: routing.SourceDefaults}
}

func (brokenTable) Refresh(context.Context) error { return errors.New("profile store offline") }

func TestObservabilityHandler_RefreshFailure(t *testing.T) {
	h := NewObservabilityHandler(nil, nil, brokenTable{}, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleRefreshRouting(w, httptest.NewRequest(http.MethodPost, "/api/v1/observability/routing/refresh", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrServiceUnavailable), resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "3 entries")
	// 5xx 不暴露内部原因
	assert.Empty(t, resp.Error.Details)
}
