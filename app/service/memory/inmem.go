package memory

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore mirrors the Redis semantics in process: per-(user,day)
// windows, FIFO cap, fixed TTL from window creation. Used in tests and
// single-instance deployments without Redis.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window

	cap int
	ttl time.Duration
	now func() time.Time
}

type window struct {
	created time.Time
	turns   []Turn
}

func NewInMemoryStore(cap int, ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string]*window),
		cap:     cap,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *InMemoryStore) Append(_ context.Context, userID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := windowKey(userID, now)

	win, ok := s.windows[key]
	if !ok || now.Sub(win.created) >= s.ttl {
		win = &window{created: now}
		s.windows[key] = win
	}

	win.turns = append(win.turns, turn)
	if len(win.turns) > s.cap {
		win.turns = win.turns[len(win.turns)-s.cap:]
	}

	return nil
}

func (s *InMemoryStore) Read(_ context.Context, userID string) ([]Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	win, ok := s.windows[windowKey(userID, now)]
	if !ok || now.Sub(win.created) >= s.ttl {
		return nil, false
	}

	turns := make([]Turn, len(win.turns))
	copy(turns, win.turns)

	return turns, false
}

func (s *InMemoryStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.windows, windowKey(userID, s.now()))

	return nil
}
