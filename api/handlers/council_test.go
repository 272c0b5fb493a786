package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/agentcouncil/api"
	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/testutil"
	"github.com/BaSui01/agentcouncil/testutil/mocks"
	"github.com/BaSui01/agentcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discussView roundtable.Result 的 JSON 形态
type discussView struct {
	SessionID       string   `json:"session_id"`
	Participants    []string `json:"participants"`
	SynthesizerID   string   `json:"synthesizer_id"`
	CompletedRounds int      `json:"completed_rounds"`
	Transcript      []struct {
		Kind    string `json:"kind"`
		Round   int    `json:"round"`
		AgentID string `json:"agent_id"`
	} `json:"transcript"`
	Synthesis string `json:"synthesis"`
	Partial   bool   `json:"partial"`
}

// solveView swarm.Result 的 JSON 形态
type solveView struct {
	Candidates []string           `json:"candidates"`
	Answer     string             `json:"answer"`
	Supporters []string           `json:"supporters"`
	Share      float64            `json:"share"`
	Converged  bool               `json:"converged"`
	Rounds     int                `json:"rounds"`
	Weights    map[string]float64 `json:"weights"`
}

func TestCouncilHandler_Discuss(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponseFunc(func(req *llm.ChatRequest) string {
		if strings.Contains(testutil.LastContent(req), "Synthesize the discussion") {
			return "final: ship it"
		}
		return "my view"
	})
	c := newTestCouncil(t, provider)

	w := c.do(t, http.MethodPost, "/api/v1/roundtable/discuss", api.DiscussRequest{
		Topic:    "split the billing service",
		AgentIDs: []string{"a-lead", "a-sec"},
		Rounds:   1,
	})
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeData[discussView](t, w)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, []string{"a-lead", "a-sec"}, res.Participants)
	assert.Equal(t, "a-lead", res.SynthesizerID)
	assert.Equal(t, 1, res.CompletedRounds)
	assert.Equal(t, "final: ship it", res.Synthesis)
	assert.False(t, res.Partial)

	contributions := 0
	for _, e := range res.Transcript {
		if e.Kind == "contribution" {
			contributions++
		}
	}
	assert.Equal(t, 2, contributions)
}

func TestCouncilHandler_DiscussErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		code   types.ErrorCode
	}{
		{
			name:   "missing topic",
			body:   api.DiscussRequest{},
			status: http.StatusBadRequest,
			code:   types.ErrInvalidRequest,
		},
		{
			name:   "bad duration",
			body:   api.DiscussRequest{Topic: "x", PerAgentTimeout: "soon"},
			status: http.StatusBadRequest,
			code:   types.ErrInvalidRequest,
		},
		{
			name:   "single participant",
			body:   api.DiscussRequest{Topic: "x", AgentIDs: []string{"a-lead"}},
			status: http.StatusUnprocessableEntity,
			code:   types.ErrInsufficientParticipants,
		},
		{
			name:   "offline participants are excluded",
			body:   api.DiscussRequest{Topic: "x", AgentIDs: []string{"a-lead", "a-off"}},
			status: http.StatusUnprocessableEntity,
			code:   types.ErrInsufficientParticipants,
		},
		{
			name:   "unknown field",
			body:   map[string]any{"topic": "x", "speakers": 3},
			status: http.StatusBadRequest,
			code:   types.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCouncil(t, nil)
			w := c.do(t, http.MethodPost, "/api/v1/roundtable/discuss", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.code), decodeErrorCode(t, w))
		})
	}
}

func TestCouncilHandler_Solve(t *testing.T) {
	c := newTestCouncil(t, nil)

	w := c.do(t, http.MethodPost, "/api/v1/swarm/solve", api.SolveRequest{
		Task:                 "pick a primary datastore",
		CandidateIDs:         []string{"a-lead", "a-sec", "a-data"},
		ConvergenceThreshold: 0.6,
		MaxRounds:            3,
	})
	require.Equal(t, http.StatusOK, w.Code)

	res := decodeData[solveView](t, w)
	assert.True(t, res.Converged)
	assert.Equal(t, 1, res.Rounds)
	assert.Contains(t, res.Answer, "postgres")
	assert.ElementsMatch(t, []string{"a-lead", "a-sec", "a-data"}, res.Supporters)
	assert.InDelta(t, 1.0, res.Share, 1e-9)

	sum := 0.0
	for _, v := range res.Weights {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCouncilHandler_SolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   api.SolveRequest
		status int
		code   types.ErrorCode
	}{
		{"missing task", api.SolveRequest{}, http.StatusBadRequest, types.ErrInvalidRequest},
		{"threshold above one", api.SolveRequest{Task: "x", ConvergenceThreshold: 1.5}, http.StatusBadRequest, types.ErrInvalidRequest},
		{"bad duration", api.SolveRequest{Task: "x", PerAgentTimeout: "-"}, http.StatusBadRequest, types.ErrInvalidRequest},
		{"one candidate", api.SolveRequest{Task: "x", CandidateIDs: []string{"a-lead"}}, http.StatusUnprocessableEntity, types.ErrInsufficientParticipants},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCouncil(t, nil)
			w := c.do(t, http.MethodPost, "/api/v1/swarm/solve", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, string(tt.code), decodeErrorCode(t, w))
		})
	}
}

func TestCouncilHandler_RejectsWrongContentType(t *testing.T) {
	c := newTestCouncil(t, nil)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/swarm/solve", strings.NewReader("task=x"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	c.mux.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), decodeErrorCode(t, w))
	assert.Zero(t, c.provider.CallCount())
}
