package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhouzirui/z-concierge/backend/internal/config"
)

func TestStoreUpdate(t *testing.T) {
	store := NewStore(config.ConciergeConfig{MaxAttempts: 3, GeneralSystemMessage: "general"})

	instructions := "  Accept minor typos.  "
	attempts := 5
	got, err := store.Update(Patch{ValidationInstructions: &instructions, MaxAttempts: &attempts})
	require.NoError(t, err)

	assert.Equal(t, "Accept minor typos.", got.ValidationInstructions)
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, "general", got.GeneralSystemMessage)
	assert.Equal(t, got, store.Snapshot())
	assert.Equal(t, "Accept minor typos.", store.ValidationInstructions())
}

func TestStoreRejectsInvalidAttempts(t *testing.T) {
	store := NewStore(config.ConciergeConfig{})
	assert.Equal(t, 3, store.Snapshot().MaxAttempts)

	zero := 0
	_, err := store.Update(Patch{MaxAttempts: &zero})
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	assert.Equal(t, 3, store.Snapshot().MaxAttempts)
}

func TestStoreAgentModel(t *testing.T) {
	store := NewStore(config.ConciergeConfig{AgentModel: "gpt-4o"})
	assert.Equal(t, "gpt-4o", store.Snapshot().AgentModel)

	mini := " gpt-4o-mini "
	got, err := store.Update(Patch{AgentModel: &mini})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.AgentModel)

	empty := ""
	got, err = store.Update(Patch{AgentModel: &empty})
	require.NoError(t, err)
	assert.Empty(t, got.AgentModel)
}
