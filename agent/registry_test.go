package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func registryFixtures() []Definition {
	return []Definition{
		{ID: "sec", Name: "Security", SystemPrompt: "You review threats.", FocusID: "security", Temperature: 0.3},
		{ID: "arch", Name: "Architect", SystemPrompt: "You design systems.", FocusID: "architect", Temperature: 0.5, MaxTokens: 800},
		{ID: "ops", Name: "Operator", SystemPrompt: "You run systems.", Offline: true},
	}
}

func newGormRegistry(t *testing.T) *GormRegistry {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "agents.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&AgentRecord{}))
	return NewGormRegistry(db, zap.NewNop())
}

type writableRegistry interface {
	Registry
	Save(context.Context, Definition) error
}

func TestRegistries(t *testing.T) {
	ctx := context.Background()

	impls := map[string]func(t *testing.T) writableRegistry{
		"memory": func(t *testing.T) writableRegistry { return NewMemoryRegistry() },
		"gorm":   func(t *testing.T) writableRegistry { return newGormRegistry(t) },
	}

	for name, build := range impls {
		t.Run(name, func(t *testing.T) {
			r := build(t)
			for _, d := range registryFixtures() {
				require.NoError(t, r.Save(ctx, d))
			}

			defs, err := r.ListAgents(ctx)
			require.NoError(t, err)
			require.Len(t, defs, 3)
			assert.Equal(t, []string{"arch", "ops", "sec"}, []string{defs[0].ID, defs[1].ID, defs[2].ID})
			assert.Equal(t, 800, defs[0].MaxTokens)
			assert.True(t, defs[1].Offline)

			got, err := r.GetAgent(ctx, "sec")
			require.NoError(t, err)
			assert.Equal(t, "security", got.FocusID)
			assert.InDelta(t, 0.3, got.Temperature, 1e-9)

			_, err = r.GetAgent(ctx, "ghost")
			assert.ErrorIs(t, err, ErrAgentNotFound)

			require.NoError(t, r.UpdateAgentFocus(ctx, "sec", "performance"))
			got, err = r.GetAgent(ctx, "sec")
			require.NoError(t, err)
			assert.Equal(t, "performance", got.FocusID)

			require.NoError(t, r.UpdateAgentFocus(ctx, "sec", ""))
			got, err = r.GetAgent(ctx, "sec")
			require.NoError(t, err)
			assert.Empty(t, got.FocusID)

			assert.ErrorIs(t, r.UpdateAgentFocus(ctx, "ghost", "security"), ErrAgentNotFound)

			// upsert 覆盖
			require.NoError(t, r.Save(ctx, Definition{ID: "ops", Name: "Operator", SystemPrompt: "v2"}))
			got, err = r.GetAgent(ctx, "ops")
			require.NoError(t, err)
			assert.Equal(t, "v2", got.SystemPrompt)
			assert.False(t, got.Offline)

			assert.Error(t, r.Save(ctx, Definition{}))
		})
	}
}

func TestMemoryRegistry_ContextCanceled(t *testing.T) {
	r := NewMemoryRegistry(registryFixtures()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ListAgents(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = r.GetAgent(ctx, "sec")
	assert.ErrorIs(t, err, context.Canceled)
}
