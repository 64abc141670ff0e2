package engine

import (
	"strings"
	"sync"
	"time"
)

// textBuffer coalesces rapid-fire message fragments per chat. People
// often split one thought across several short messages; waiting out a
// short silence lets them reason over the whole thing at once.
type textBuffer struct {
	delay time.Duration
	flush func(chatID int64, text string)

	mu      sync.Mutex
	pending map[int64]*bufferEntry
}

type bufferEntry struct {
	parts []string
	timer *time.Timer
}

func newTextBuffer(delay time.Duration, flush func(chatID int64, text string)) *textBuffer {
	return &textBuffer{
		delay:   delay,
		flush:   flush,
		pending: make(map[int64]*bufferEntry),
	}
}

// Add appends a fragment and restarts the chat's silence timer.
func (b *textBuffer) Add(chatID int64, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.pending[chatID]
	if !ok {
		entry = &bufferEntry{}
		b.pending[chatID] = entry
	}

	entry.parts = append(entry.parts, text)

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(b.delay, func() {
		if text := b.Drain(chatID); text != "" {
			b.flush(chatID, text)
		}
	})
}

// Drain returns the buffered text immediately and cancels the timer.
// Used both by the timer itself and before media messages, which must
// not overtake buffered text.
func (b *textBuffer) Drain(chatID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.pending[chatID]
	if !ok {
		return ""
	}

	if entry.timer != nil {
		entry.timer.Stop()
	}
	delete(b.pending, chatID)

	return strings.Join(entry.parts, "\n")
}
