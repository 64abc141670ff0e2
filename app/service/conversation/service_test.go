package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gastobot/app/config"
	"gastobot/app/service/memory"
	"gastobot/app/service/normalize"
	"gastobot/app/service/pending"
	"gastobot/app/service/policy"
	"gastobot/app/service/queue"
	"gastobot/app/service/tools"
	"gastobot/app/store/budget"
	"gastobot/app/store/ledger"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc     *Service
	store   *ledger.MemoryStore
	pending *pending.Service
	memory  *memory.InMemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := ledger.NewMemoryStore()
	pendingSvc, err := pending.New(nil)
	require.NoError(t, err)

	memStore := memory.NewInMemoryStore(20, 25*time.Hour)

	cfg := &config.Config{}
	cfg.Policy.IdleGap = 2 * time.Hour

	return &testEnv{
		svc: &Service{
			cfg:        cfg,
			memorySvc:  memStore,
			pendingSvc: pendingSvc,
			dispatcher: tools.NewDispatcherWith(
				store,
				budget.NewService(budget.NewStaticSource(nil), store),
				policy.NewEngine(500_000),
				pendingSvc,
			),
		},
		store:   store,
		pending: pendingSvc,
		memory:  memStore,
	}
}

func (e *testEnv) register(t *testing.T, amount float64, item string) string {
	t.Helper()

	args, err := json.Marshal(tools.RegisterArgs{Amount: amount, Item: item})
	require.NoError(t, err)

	out := e.svc.dispatcher.Dispatch(context.Background(), tools.DispatchContext{
		UserID:    "u1",
		Utterance: item,
		Now:       time.Now(),
	}, tools.Invocation{Name: tools.ToolRegisterExpense, Arguments: args})
	require.False(t, out.Failed())

	return out.RecordID
}

func TestMethodAnswerResolvesWithoutReasoning(t *testing.T) {
	env := newTestEnv(t)
	recordID := env.register(t, 45000, "Pizza")

	// agentSvc is nil: reaching the reasoning step would panic, proving
	// the shortcut never calls the model.
	reply, err := env.svc.Process(context.Background(), "u1", normalize.Input{
		Kind: normalize.KindText,
		Text: "con tarjeta",
	})
	require.NoError(t, err)
	assert.Contains(t, reply, "Tarjeta")

	records, err := env.store.Find(context.Background(), ledger.Query{User: "u1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, recordID, records[0].ID)
	assert.Equal(t, "Tarjeta", records[0].Method)

	_, open := env.pending.Get("u1")
	assert.False(t, open)
}

func TestFullSentenceIsNotAMethodAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, 45000, "Pizza")

	_, ok := env.svc.resolveFollowUp(context.Background(), tools.DispatchContext{
		UserID:    "u1",
		Utterance: "ayer compré otra cosa con tarjeta en el centro comercial",
		Now:       time.Now(),
	})
	assert.False(t, ok, "a full registration sentence must go through reasoning")
}

func TestNoFollowUpMeansNoShortcut(t *testing.T) {
	env := newTestEnv(t)

	_, ok := env.svc.resolveFollowUp(context.Background(), tools.DispatchContext{
		UserID:    "u1",
		Utterance: "tarjeta",
		Now:       time.Now(),
	})
	assert.False(t, ok)
}

func TestEmptyMessageGetsHelpReply(t *testing.T) {
	env := newTestEnv(t)

	reply, err := env.svc.Process(context.Background(), "u1", normalize.Input{Kind: normalize.KindText, Text: "   "})
	require.NoError(t, err)
	assert.Equal(t, emptyReply, reply)
}

func TestStaleDetection(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	assert.False(t, env.svc.stale(nil, now))

	fresh := []memory.Turn{{Role: memory.RoleUser, Text: "hola", Timestamp: now.Add(-time.Minute)}}
	assert.False(t, env.svc.stale(fresh, now))

	old := []memory.Turn{{Role: memory.RoleUser, Text: "hola", Timestamp: now.Add(-3 * time.Hour)}}
	assert.True(t, env.svc.stale(old, now))
}

func TestConcurrentMessagesKeepReceiptOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	di := do.New()
	do.ProvideValue(di, ctx)
	queueSvc, err := queue.New(di)
	require.NoError(t, err)

	// Both tasks land on the lane back to back, like two quick messages.
	// The first registers, the second answers the method follow-up; they
	// must produce one create followed by one update, never two creates.
	queueSvc.Submit("u1", func(ctx context.Context) {
		env.register(t, 10000, "Café")
	})
	queueSvc.Submit("u1", func(ctx context.Context) {
		_, err := env.svc.Process(ctx, "u1", normalize.Input{Kind: normalize.KindText, Text: "con tarjeta"})
		assert.NoError(t, err)
	})

	require.NoError(t, queueSvc.Shutdown())

	records, err := env.store.Find(ctx, ledger.Query{User: "u1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Tarjeta", records[0].Method)
}

func TestRememberCarriesDispatcherTag(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.svc.remember(ctx, "u1", []tools.Outcome{
		{Tool: tools.ToolDeleteExpense, Text: "¿Seguro?", Tag: policy.DeleteTag("abc")},
	}, "¿Seguro que quieres eliminarlo?")

	turns, degraded := env.memory.Read(ctx, "u1")
	require.False(t, degraded)
	require.NotEmpty(t, turns)

	last := turns[len(turns)-1]
	assert.Equal(t, memory.RoleAssistant, last.Role)
	assert.Equal(t, policy.DeleteTag("abc"), last.Tag)
}
