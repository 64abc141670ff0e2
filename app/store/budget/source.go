package budget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gastobot/app/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

var (
	_ Source = (*HTTPSource)(nil)
	_ Source = (*StaticSource)(nil)
)

// HTTPSource reads category limits from a published JSON endpoint
// (a spreadsheet export, typically). Limit reads are idempotent, so they
// retry with backoff; everything else in the system does not.
type HTTPSource struct {
	http *resty.Client
	url  string
}

type limitRow struct {
	Category string  `json:"category"`
	Limit    float64 `json:"limit"`
}

func NewHTTPSource(cfg *config.Config) *HTTPSource {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetHeader("Accept", "application/json")

	if cfg.Budget.Token != "" {
		client.SetAuthToken(cfg.Budget.Token)
	}

	return &HTTPSource{
		http: client,
		url:  cfg.Budget.URL,
	}
}

func (s *HTTPSource) LimitFor(ctx context.Context, category string) (float64, bool, error) {
	var rows []limitRow

	fetch := func() error {
		resp, err := s.http.R().
			SetContext(ctx).
			SetResult(&rows).
			Get(s.url)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("budget endpoint returned %s", resp.Status())
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(fetch, policy); err != nil {
		return 0, false, fmt.Errorf("fetch budget limits: %w", err)
	}

	for _, row := range rows {
		if strings.EqualFold(strings.TrimSpace(row.Category), strings.TrimSpace(category)) {
			return row.Limit, true, nil
		}
	}

	return 0, false, nil
}

// StaticSource serves limits straight from config.
type StaticSource struct {
	limits map[string]float64
}

func NewStaticSource(limits map[string]float64) *StaticSource {
	normalized := make(map[string]float64, len(limits))
	for category, limit := range limits {
		normalized[strings.ToLower(strings.TrimSpace(category))] = limit
	}

	return &StaticSource{limits: normalized}
}

func (s *StaticSource) LimitFor(_ context.Context, category string) (float64, bool, error) {
	limit, ok := s.limits[strings.ToLower(strings.TrimSpace(category))]

	return limit, ok, nil
}
