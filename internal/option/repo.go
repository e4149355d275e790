package option

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/pricing"
)

// Repo persists per-option price state. Saves touch exactly one field per
// call, matching the commit granularity of the pricing session; the repo is
// the session's CommitSink.
type Repo struct {
	pool *pgxpool.Pool
}

// NewRepo constructs a Repo.
func NewRepo(pool *pgxpool.Pool) (*Repo, error) {
	if pool == nil {
		return nil, errors.New("option: pool is required")
	}
	return &Repo{pool: pool}, nil
}

// Load returns every persisted option keyed by option code.
func (r *Repo) Load(ctx context.Context) (map[string]pricing.PersistedOption, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT option_code, id::text, custom_price::text, markup_percent::text
		FROM price_options`)
	if err != nil {
		return nil, fmt.Errorf("option: load: %w", err)
	}
	defer rows.Close()

	result := make(map[string]pricing.PersistedOption)
	for rows.Next() {
		var (
			code    string
			id      string
			price   *string
			percent *string
		)
		if err := rows.Scan(&code, &id, &price, &percent); err != nil {
			return nil, fmt.Errorf("option: scan: %w", err)
		}
		persisted := pricing.PersistedOption{ID: id}
		if price != nil {
			d, err := decimal.NewFromString(*price)
			if err != nil {
				return nil, fmt.Errorf("option: parse custom price for %s: %w", code, err)
			}
			persisted.CustomPrice = &d
		}
		if percent != nil {
			d, err := decimal.NewFromString(*percent)
			if err != nil {
				return nil, fmt.Errorf("option: parse markup for %s: %w", code, err)
			}
			persisted.MarkupPercent = &d
		}
		result[code] = persisted
	}
	return result, rows.Err()
}

// Get returns the persisted state for one option code.
func (r *Repo) Get(ctx context.Context, code string) (pricing.PersistedOption, error) {
	var (
		id      string
		price   *string
		percent *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, custom_price::text, markup_percent::text
		FROM price_options WHERE option_code = $1`, code).
		Scan(&id, &price, &percent)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.PersistedOption{}, err
	}
	if err != nil {
		return pricing.PersistedOption{}, fmt.Errorf("option: get %s: %w", code, err)
	}
	persisted := pricing.PersistedOption{ID: id}
	if price != nil {
		d, err := decimal.NewFromString(*price)
		if err != nil {
			return pricing.PersistedOption{}, err
		}
		persisted.CustomPrice = &d
	}
	if percent != nil {
		d, err := decimal.NewFromString(*percent)
		if err != nil {
			return pricing.PersistedOption{}, err
		}
		persisted.MarkupPercent = &d
	}
	return persisted, nil
}

// SaveCustomPrice upserts only the custom price for the option.
func (r *Repo) SaveCustomPrice(ctx context.Context, code string, price decimal.Decimal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO price_options (option_code, custom_price)
		VALUES ($1, $2)
		ON CONFLICT (option_code) DO UPDATE SET custom_price = EXCLUDED.custom_price, updated_at = now()`,
		code, price.String())
	if err != nil {
		return fmt.Errorf("option: save custom price for %s: %w", code, err)
	}
	return nil
}

// SaveMarkup upserts only the markup percentage for the option.
func (r *Repo) SaveMarkup(ctx context.Context, code string, percent decimal.Decimal) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO price_options (option_code, markup_percent)
		VALUES ($1, $2)
		ON CONFLICT (option_code) DO UPDATE SET markup_percent = EXCLUDED.markup_percent, updated_at = now()`,
		code, percent.String())
	if err != nil {
		return fmt.Errorf("option: save markup for %s: %w", code, err)
	}
	return nil
}
