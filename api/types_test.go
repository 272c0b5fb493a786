package api

import (
	"testing"
	"time"

	"github.com/BaSui01/agentcouncil/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscussRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DiscussRequest
		wantErr bool
	}{
		{"ok", DiscussRequest{Topic: "caching"}, false},
		{"blank topic", DiscussRequest{Topic: "  "}, true},
		{"negative rounds", DiscussRequest{Topic: "x", Rounds: -1}, true},
		{"negative max agents", DiscussRequest{Topic: "x", MaxAgents: -2}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				require.NotNil(t, err)
				assert.Equal(t, types.ErrInvalidRequest, err.Code)
			} else {
				assert.Nil(t, err)
			}
		})
	}
}

func TestSolveRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     SolveRequest
		wantErr bool
	}{
		{"ok", SolveRequest{Task: "pick", ConvergenceThreshold: 0.7}, false},
		{"zero threshold uses default", SolveRequest{Task: "pick"}, false},
		{"blank task", SolveRequest{}, true},
		{"threshold above one", SolveRequest{Task: "pick", ConvergenceThreshold: 1.5}, true},
		{"negative threshold", SolveRequest{Task: "pick", ConvergenceThreshold: -0.1}, true},
		{"negative rounds", SolveRequest{Task: "pick", MaxRounds: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.req.Validate() != nil)
		})
	}
}

func TestProcessRequest_ToMessages(t *testing.T) {
	t.Run("input only", func(t *testing.T) {
		msgs, err := (&ProcessRequest{Input: "hi"}).ToMessages()
		require.Nil(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, types.RoleUser, msgs[0].Role)
	})

	t.Run("messages then input", func(t *testing.T) {
		msgs, err := (&ProcessRequest{
			Messages: []Message{{Content: "first"}, {Role: types.RoleAssistant, Content: "reply"}},
			Input:    "second",
		}).ToMessages()
		require.Nil(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, types.RoleUser, msgs[0].Role, "empty role defaults to user")
		assert.Equal(t, "second", msgs[2].Content)
	})

	tests := []struct {
		name string
		req  ProcessRequest
	}{
		{"empty", ProcessRequest{}},
		{"system role", ProcessRequest{Messages: []Message{{Role: types.RoleSystem, Content: "x"}}}},
		{"blank content", ProcessRequest{Messages: []Message{{Role: types.RoleUser, Content: " "}}}},
		{"negative max tokens", ProcessRequest{Input: "x", MaxTokens: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.ToMessages()
			require.NotNil(t, err)
			assert.Equal(t, types.ErrInvalidRequest, err.Code)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("total_timeout", "")
	assert.Nil(t, err)
	assert.Zero(t, d)

	d, err = ParseDuration("total_timeout", "90s")
	assert.Nil(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("total_timeout", "soon")
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "total_timeout")

	_, err = ParseDuration("total_timeout", "-1s")
	assert.NotNil(t, err)
}
