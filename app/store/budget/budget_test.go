package budget

import (
	"context"
	"testing"
	"time"

	"gastobot/app/store/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, store *ledger.MemoryStore, amount float64, category string, spentOn time.Time) {
	t.Helper()

	require.NoError(t, store.Create(context.Background(), &ledger.Record{
		User:     "u1",
		Amount:   amount,
		Item:     "algo",
		Category: category,
		SpentOn:  spentOn,
	}))
}

func TestCheckSumsCurrentMonthOnly(t *testing.T) {
	store := ledger.NewMemoryStore()
	now := time.Date(2024, 12, 22, 12, 0, 0, 0, time.UTC)

	seed(t, store, 30000, "Comida", time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC))
	seed(t, store, 20000, "Comida", time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC))
	// Previous month and other categories stay out of the sum.
	seed(t, store, 99000, "Comida", time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC))
	seed(t, store, 15000, "Transporte", time.Date(2024, 12, 10, 0, 0, 0, 0, time.UTC))

	svc := NewService(NewStaticSource(map[string]float64{"Comida": 100_000}), store)

	status, ok, err := svc.Check(context.Background(), "u1", "Comida", now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50000.0, status.Spent)
	assert.Equal(t, 50000.0, status.Remaining)
	assert.Equal(t, 50.0, status.UsedPct)
}

func TestCheckUndefinedCategory(t *testing.T) {
	svc := NewService(NewStaticSource(map[string]float64{"Comida": 100_000}), ledger.NewMemoryStore())

	_, ok, err := svc.Check(context.Background(), "u1", "Viajes", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStaticSourceIsCaseInsensitive(t *testing.T) {
	source := NewStaticSource(map[string]float64{" Comida ": 80_000})

	limit, ok, err := source.LimitFor(context.Background(), "comida")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 80_000.0, limit)
}
