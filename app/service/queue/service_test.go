package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	di := do.New()
	do.ProvideValue(di, context.Background())

	svc, err := New(di)
	require.NoError(t, err)

	return svc
}

func TestTasksRunInSubmissionOrderPerUser(t *testing.T) {
	svc := newTestService(t)

	var mu sync.Mutex
	var order []int

	for i := 0; i < 50; i++ {
		i := i
		svc.Submit("u1", func(context.Context) {
			// Uneven task durations must not reorder completion.
			if i%2 == 0 {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	require.NoError(t, svc.Shutdown())

	require.Len(t, order, 50)
	for i, got := range order {
		assert.Equal(t, i, got)
	}
}

func TestUsersDoNotBlockEachOther(t *testing.T) {
	svc := newTestService(t)

	slowStarted := make(chan struct{})
	release := make(chan struct{})
	fastDone := make(chan struct{})

	svc.Submit("slow", func(context.Context) {
		close(slowStarted)
		<-release
	})

	<-slowStarted

	svc.Submit("fast", func(context.Context) {
		close(fastDone)
	})

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("fast user's task was blocked by the slow user")
	}

	close(release)
	require.NoError(t, svc.Shutdown())
}

func TestSubmitRacingShutdownDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		svc := newTestService(t)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				svc.Submit("u1", func(context.Context) {})
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Shutdown())
		}()

		wg.Wait()
	}
}

func TestSubmitAfterShutdownIsIgnored(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, svc.Shutdown())

	ran := false
	svc.Submit("u1", func(context.Context) { ran = true })

	assert.False(t, ran)
}
