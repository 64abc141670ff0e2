package budget

import (
	"context"
	"fmt"
	"time"

	"gastobot/app/config"
	"gastobot/app/store/ledger"

	"github.com/samber/do"
)

// Source supplies the monthly limit per category. The second return is
// false when no limit is defined for the category.
type Source interface {
	LimitFor(ctx context.Context, category string) (float64, bool, error)
}

// Service combines the limit source with the ledger to answer
// "how much is left in this category".
type Service struct {
	source Source
	ledger ledger.Store
}

func NewService(source Source, store ledger.Store) *Service {
	return &Service{source: source, ledger: store}
}

// New wires the configured source: the HTTP endpoint when set, static
// config limits otherwise.
func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	var source Source
	if cfg.Budget.URL != "" {
		source = NewHTTPSource(cfg)
	} else {
		source = NewStaticSource(cfg.Budget.Limits)
	}

	return NewService(source, do.MustInvoke[ledger.Store](di)), nil
}

type Status struct {
	Category  string
	Limit     float64
	Spent     float64
	Remaining float64
	UsedPct   float64
}

// Check returns the budget status for the current month. ok is false when
// no limit is defined.
func (s *Service) Check(ctx context.Context, user, category string, now time.Time) (Status, bool, error) {
	limit, ok, err := s.source.LimitFor(ctx, category)
	if err != nil {
		return Status{}, false, fmt.Errorf("fetch limit: %w", err)
	}
	if !ok {
		return Status{}, false, nil
	}

	spent, err := s.SpentInPeriod(ctx, user, category, monthStart(now), now)
	if err != nil {
		return Status{}, false, err
	}

	st := Status{
		Category:  category,
		Limit:     limit,
		Spent:     spent,
		Remaining: limit - spent,
	}
	if limit > 0 {
		st.UsedPct = spent / limit * 100
	}

	return st, true, nil
}

func (s *Service) LimitFor(ctx context.Context, category string) (float64, bool, error) {
	return s.source.LimitFor(ctx, category)
}

func (s *Service) SpentInPeriod(ctx context.Context, user, category string, from, to time.Time) (float64, error) {
	records, err := s.ledger.Find(ctx, ledger.Query{
		User:     user,
		From:     from,
		To:       to.AddDate(0, 0, 1),
		Category: category,
	})
	if err != nil {
		return 0, fmt.Errorf("query spend: %w", err)
	}

	var total float64
	for _, rec := range records {
		total += rec.Amount
	}

	return total, nil
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}
