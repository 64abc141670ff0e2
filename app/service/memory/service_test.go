package memory

import (
	"context"
	"testing"
	"time"

	"gastobot/app/config"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutRedisKeepsAWorkingWindow(t *testing.T) {
	cfg := &config.Config{}
	cfg.Redis.Enabled = false
	cfg.Policy.WindowSize = 20
	cfg.Policy.WindowTTL = 25 * time.Hour

	di := do.New()
	do.ProvideValue(di, cfg)

	store, err := New(di)
	require.NoError(t, err)
	require.IsType(t, &InMemoryStore{}, store)

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "u1", Turn{Role: RoleUser, Text: "hola", Timestamp: time.Now()}))

	turns, degraded := store.Read(ctx, "u1")
	assert.False(t, degraded)
	require.Len(t, turns, 1)
	assert.Equal(t, "hola", turns[0].Text)
}
