package ledger

import (
	"context"
	"errors"
	"fmt"
	"gastobot/app/config"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do"
	"github.com/samber/oops"
)

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(di *do.Injector) (*PostgresStore, error) {
	cfg := do.MustInvoke[*config.Config](di)

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s",
		cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Database)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Errorf("failed to create pgx pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		return nil, oops.Errorf("failed to ping postgres: %w", err)
	}

	if _, err = pool.Exec(ctx, schema); err != nil {
		return nil, oops.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS expenses (
	id         UUID PRIMARY KEY,
	"user"     TEXT NOT NULL,
	amount     DOUBLE PRECISION NOT NULL,
	item       TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	method     TEXT NOT NULL DEFAULT '',
	notes      TEXT NOT NULL DEFAULT '',
	raw_input  TEXT NOT NULL DEFAULT '',
	spent_on   DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS expenses_user_spent_on_idx ON expenses ("user", spent_on);
`

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO expenses (id, "user", amount, item, category, method, notes, raw_input, spent_on, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.User, rec.Amount, rec.Item, rec.Category, rec.Method,
		rec.Notes, rec.RawInput, rec.SpentOn, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}

	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id, field string, value any) (*Record, error) {
	column, ok := updatableColumns[field]
	if !ok {
		return nil, fmt.Errorf("field %q is not updatable", field)
	}

	rec := &Record{}
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`UPDATE expenses SET %s = $1 WHERE id = $2
		 RETURNING id, "user", amount, item, category, method, notes, raw_input, spent_on, created_at`, column),
		value, id,
	).Scan(&rec.ID, &rec.User, &rec.Amount, &rec.Item, &rec.Category,
		&rec.Method, &rec.Notes, &rec.RawInput, &rec.SpentOn, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update expense: %w", err)
	}

	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) Find(ctx context.Context, q Query) ([]Record, error) {
	sql := `SELECT id, "user", amount, item, category, method, notes, raw_input, spent_on, created_at
	        FROM expenses WHERE "user" = $1`
	args := []any{q.User}

	if !q.From.IsZero() {
		args = append(args, q.From)
		sql += fmt.Sprintf(` AND spent_on >= $%d`, len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		sql += fmt.Sprintf(` AND spent_on < $%d`, len(args))
	}
	if q.Category != "" {
		args = append(args, q.Category)
		sql += fmt.Sprintf(` AND lower(category) = lower($%d)`, len(args))
	}

	sql += ` ORDER BY created_at DESC`

	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.User, &rec.Amount, &rec.Item, &rec.Category,
			&rec.Method, &rec.Notes, &rec.RawInput, &rec.SpentOn, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		result = append(result, rec)
	}

	return result, rows.Err()
}

func (s *PostgresStore) Shutdown() error {
	s.db.Close()

	return nil
}
