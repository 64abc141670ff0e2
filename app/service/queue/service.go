package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/do"
)

const bufferSize = 64

var _ do.Shutdownable = (*Service)(nil)

// Service runs tasks strictly in submission order per user, with
// different users processed concurrently. Receipt order per user is the
// processing order, regardless of how long each task takes.
type Service struct {
	ctx context.Context

	mu      sync.Mutex
	workers map[string]chan func(ctx context.Context)
	wg      sync.WaitGroup
	closed  bool
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		ctx:     do.MustInvoke[context.Context](di),
		workers: make(map[string]chan func(ctx context.Context)),
	}, nil
}

// Submit enqueues a task on the user's lane, starting the lane worker on
// first use. A full lane drops the task instead of blocking the caller.
// The send happens under the mutex so Shutdown cannot close the lane
// between the closed check and the send.
func (s *Service) Submit(userID string, task func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	lane, ok := s.workers[userID]
	if !ok {
		lane = make(chan func(ctx context.Context), bufferSize)
		s.workers[userID] = lane

		s.wg.Add(1)
		go s.runLane(lane)
	}

	select {
	case lane <- task:
	default:
		slog.Warn("User lane is full, dropping message", "user", userID)
	}
}

func (s *Service) runLane(lane <-chan func(ctx context.Context)) {
	defer s.wg.Done()

	for task := range lane {
		task(s.ctx)
	}
}

func (s *Service) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	for _, lane := range s.workers {
		close(lane)
	}
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}
