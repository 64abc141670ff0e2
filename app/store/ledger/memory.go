package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the ledger in process. Used in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	clone := *rec
	s.records[rec.ID] = &clone

	return nil
}

func (s *MemoryStore) Update(_ context.Context, id, field string, value any) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := updatableColumns[field]; !ok {
		return nil, fmt.Errorf("field %q is not updatable", field)
	}

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	switch field {
	case "amount":
		amount, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		rec.Amount = amount
	case "item":
		rec.Item = fmt.Sprint(value)
	case "category":
		rec.Category = fmt.Sprint(value)
	case "method":
		rec.Method = fmt.Sprint(value)
	case "notes":
		rec.Notes = fmt.Sprint(value)
	case "date":
		switch v := value.(type) {
		case time.Time:
			rec.SpentOn = v
		default:
			parsed, err := time.Parse("2006-01-02", fmt.Sprint(value))
			if err != nil {
				return nil, fmt.Errorf("invalid date value %q", value)
			}
			rec.SpentOn = parsed
		}
	}

	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)

	return nil
}

func (s *MemoryStore) Find(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Record
	for _, rec := range s.records {
		if rec.User != q.User {
			continue
		}
		if !q.From.IsZero() && rec.SpentOn.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && !rec.SpentOn.Before(q.To) {
			continue
		}
		if q.Category != "" && !strings.EqualFold(rec.Category, q.Category) {
			continue
		}
		result = append(result, *rec)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}

	return result, nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("invalid amount value %v", value)
	}
}
