package stockmon

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no stock row exists for the option code.
var ErrNotFound = errors.New("stockmon: not found")

// Level is the tracked stock position for one option.
type Level struct {
	OptionCode       string
	CurrentStock     int
	MinimumThreshold int
}

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) (*Repo, error) {
	if pool == nil {
		return nil, errors.New("stockmon: pool is required")
	}
	return &Repo{pool: pool}, nil
}

// List returns every tracked level ordered by option code.
func (r *Repo) List(ctx context.Context) ([]Level, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT option_code, current_stock, minimum_threshold
		FROM stock_levels ORDER BY option_code`)
	if err != nil {
		return nil, fmt.Errorf("stockmon: list: %w", err)
	}
	defer rows.Close()

	var out []Level
	for rows.Next() {
		var l Level
		if err := rows.Scan(&l.OptionCode, &l.CurrentStock, &l.MinimumThreshold); err != nil {
			return nil, fmt.Errorf("stockmon: scan: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Get returns the level for one option code.
func (r *Repo) Get(ctx context.Context, code string) (Level, error) {
	var l Level
	err := r.pool.QueryRow(ctx,
		`SELECT option_code, current_stock, minimum_threshold
		FROM stock_levels WHERE option_code = $1`, code).
		Scan(&l.OptionCode, &l.CurrentStock, &l.MinimumThreshold)
	if errors.Is(err, pgx.ErrNoRows) {
		return Level{}, ErrNotFound
	}
	if err != nil {
		return Level{}, fmt.Errorf("stockmon: get: %w", err)
	}
	return l, nil
}

// SetThreshold upserts the minimum threshold for the option.
func (r *Repo) SetThreshold(ctx context.Context, code string, threshold int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO stock_levels (option_code, minimum_threshold)
		VALUES ($1, $2)
		ON CONFLICT (option_code) DO UPDATE SET minimum_threshold = EXCLUDED.minimum_threshold, updated_at = now()`,
		code, threshold)
	if err != nil {
		return fmt.Errorf("stockmon: set threshold: %w", err)
	}
	return nil
}

// AdjustStock adds delta to the current stock of the option. Negative deltas
// are allowed down to zero.
func (r *Repo) AdjustStock(ctx context.Context, code string, delta int) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stock_levels
		SET current_stock = GREATEST(0, current_stock + $2), updated_at = now()
		WHERE option_code = $1`, code, delta)
	if err != nil {
		return fmt.Errorf("stockmon: adjust stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
