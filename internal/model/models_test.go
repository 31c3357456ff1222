package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAlertPreferencesWantsTool(t *testing.T) {
	t.Parallel()

	toolA := uuid.New()
	toolB := uuid.New()

	// Empty set means every tool is relevant
	all := AlertPreferences{}
	assert.True(t, all.WantsTool(toolA))
	assert.True(t, all.WantsTool(toolB))

	scoped := AlertPreferences{ToolIDs: []uuid.UUID{toolA}}
	assert.True(t, scoped.WantsTool(toolA))
	assert.False(t, scoped.WantsTool(toolB))
}
