package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu      sync.Mutex
	flushes []string
	done    chan struct{}
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{done: make(chan struct{}, 8)}
}

func (r *flushRecorder) flush(_ int64, text string) {
	r.mu.Lock()
	r.flushes = append(r.flushes, text)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *flushRecorder) wait(t *testing.T) {
	t.Helper()

	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("buffer never flushed")
	}
}

func TestBufferMergesFragments(t *testing.T) {
	rec := newFlushRecorder()
	buf := newTextBuffer(50*time.Millisecond, rec.flush)

	buf.Add(1, "gasté 20000")
	buf.Add(1, "en almuerzo")
	buf.Add(1, "con tarjeta")

	rec.wait(t)

	require.Len(t, rec.flushes, 1)
	assert.Equal(t, "gasté 20000\nen almuerzo\ncon tarjeta", rec.flushes[0])
}

func TestBufferKeepsChatsSeparate(t *testing.T) {
	rec := newFlushRecorder()
	buf := newTextBuffer(30*time.Millisecond, rec.flush)

	buf.Add(1, "de uno")
	buf.Add(2, "de dos")

	rec.wait(t)
	rec.wait(t)

	assert.ElementsMatch(t, []string{"de uno", "de dos"}, rec.flushes)
}

func TestDrainCancelsTimer(t *testing.T) {
	rec := newFlushRecorder()
	buf := newTextBuffer(30*time.Millisecond, rec.flush)

	buf.Add(1, "primera parte")
	assert.Equal(t, "primera parte", buf.Drain(1))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.flushes, "drained buffer must not flush again")

	assert.Empty(t, buf.Drain(1))
}
