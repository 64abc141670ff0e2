package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("expense not found")
)

// Record is one ledger entry. SpentOn is the calendar date the money was
// spent (may differ from CreatedAt when the user registers late).
type Record struct {
	ID        string
	User      string
	Amount    float64
	Item      string
	Category  string
	Method    string
	Notes     string
	RawInput  string
	SpentOn   time.Time
	CreatedAt time.Time
}

// Query filters expenses for one user. Zero time bounds are unbounded.
type Query struct {
	User     string
	From     time.Time
	To       time.Time
	Category string
	Limit    int
}

// Store is the ledger collaborator. Every call is a single atomic
// operation; the caller never compensates a partial write.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Update(ctx context.Context, id, field string, value any) (*Record, error)
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, q Query) ([]Record, error)
}

// columns updatable through the edit path. The dispatcher validates field
// names too; the store enforces its own whitelist so no caller can reach
// arbitrary columns.
var updatableColumns = map[string]string{
	"amount":   "amount",
	"item":     "item",
	"category": "category",
	"method":   "method",
	"notes":    "notes",
	"date":     "spent_on",
}
