package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, start time.Time) (*InMemoryStore, *time.Time) {
	t.Helper()

	now := start
	store := NewInMemoryStore(20, 25*time.Hour)
	store.SetClock(func() time.Time { return now })

	return store, &now
}

func TestWindowCapKeepsNewest(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Date(2024, 12, 22, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 25; i++ {
		err := store.Append(ctx, "u1", Turn{Role: RoleUser, Text: fmt.Sprintf("msg-%d", i)})
		require.NoError(t, err)
	}

	turns, degraded := store.Read(ctx, "u1")
	assert.False(t, degraded)
	require.Len(t, turns, 20)
	assert.Equal(t, "msg-5", turns[0].Text)
	assert.Equal(t, "msg-24", turns[19].Text)
}

func TestWindowExpiresFromCreation(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(t, time.Date(2024, 12, 22, 1, 0, 0, 0, time.UTC))

	require.NoError(t, store.Append(ctx, "u1", Turn{Role: RoleUser, Text: "hola"}))

	// Still alive just before the deadline, on the next calendar day.
	*now = now.Add(25*time.Hour - time.Minute)
	_, _ = store.Read(ctx, "u1")

	*now = now.Add(2 * time.Minute)
	turns, degraded := store.Read(ctx, "u1")
	assert.Empty(t, turns)
	assert.False(t, degraded)
}

func TestWindowRollsOverAtMidnight(t *testing.T) {
	ctx := context.Background()
	store, now := newTestStore(t, time.Date(2024, 12, 22, 23, 50, 0, 0, time.UTC))

	require.NoError(t, store.Append(ctx, "u1", Turn{Role: RoleUser, Text: "antes"}))

	*now = time.Date(2024, 12, 23, 0, 10, 0, 0, time.UTC)
	turns, _ := store.Read(ctx, "u1")
	assert.Empty(t, turns, "new day starts a fresh window")

	require.NoError(t, store.Append(ctx, "u1", Turn{Role: RoleUser, Text: "después"}))
	turns, _ = store.Read(ctx, "u1")
	require.Len(t, turns, 1)
	assert.Equal(t, "después", turns[0].Text)
}

func TestWindowsAreIsolatedPerUser(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Date(2024, 12, 22, 10, 0, 0, 0, time.UTC))

	require.NoError(t, store.Append(ctx, "u1", Turn{Role: RoleUser, Text: "de u1"}))

	turns, _ := store.Read(ctx, "u2")
	assert.Empty(t, turns)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Date(2024, 12, 22, 10, 0, 0, 0, time.UTC))

	require.NoError(t, store.Append(ctx, "u1", Turn{Role: RoleUser, Text: "hola"}))
	require.NoError(t, store.Clear(ctx, "u1"))

	turns, _ := store.Read(ctx, "u1")
	assert.Empty(t, turns)
}
