package pending

import (
	"sync"
	"time"

	"github.com/samber/do"
)

// Item marks a committed expense still missing one deferred field.
// At most one per user: registering again before answering supersedes the
// old item, so only the newest expense is eligible for the follow-up.
type Item struct {
	RecordID     string
	MissingField string
	CreatedAt    time.Time
}

// Service holds pending follow-ups in process. Unlike the conversation
// window this is a correctness dependency, so it does not live behind the
// best-effort memory backend.
type Service struct {
	mu     sync.RWMutex
	items  map[string]Item
	recent map[string]string
}

func New(_ *do.Injector) (*Service, error) {
	return &Service{
		items:  make(map[string]Item),
		recent: make(map[string]string),
	}, nil
}

func (s *Service) Set(userID string, item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[userID] = item
}

func (s *Service) Get(userID string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[userID]

	return item, ok
}

// Resolve clears the pending item only if it still refers to recordID;
// a superseding registration in between keeps the newer item.
func (s *Service) Resolve(userID, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item, ok := s.items[userID]; ok && item.RecordID == recordID {
		delete(s.items, userID)
	}
}

func (s *Service) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, userID)
}

// SetRecent remembers the last expense a user touched, so "el último
// gasto" edits and deletions resolve without an explicit id.
func (s *Service) SetRecent(userID, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent[userID] = recordID
}

func (s *Service) GetRecent(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordID, ok := s.recent[userID]

	return recordID, ok
}
