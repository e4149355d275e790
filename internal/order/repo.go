package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order matches the given id.
var ErrNotFound = errors.New("order: not found")

// Order is the persisted order header.
type Order struct {
	ID             string
	Reference      string
	UpstreamStatus string
	CreatedAt      time.Time
}

// Outcome is one immutable per-unit fulfillment result. Rows are append-only:
// a finished attempt is never rewritten, a retry adds new rows.
type Outcome struct {
	ID              string
	SKU             string
	AmountWholesale decimal.Decimal
	Succeeded       bool
	FailureReason   string
}

// Repo persists orders and their outcome rows.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) (*Repo, error) {
	if pool == nil {
		return nil, errors.New("order: pool is required")
	}
	return &Repo{pool: pool}, nil
}

// Create inserts a new order header in the given upstream status.
func (r *Repo) Create(ctx context.Context, reference, upstreamStatus string) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (reference, upstream_status)
		VALUES ($1, $2)
		RETURNING id::text, reference, upstream_status, created_at`,
		reference, upstreamStatus).
		Scan(&o.ID, &o.Reference, &o.UpstreamStatus, &o.CreatedAt)
	if err != nil {
		return Order{}, fmt.Errorf("order: create: %w", err)
	}
	return o, nil
}

// SetUpstreamStatus updates only the upstream status of the order header.
func (r *Repo) SetUpstreamStatus(ctx context.Context, orderID, status string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET upstream_status = $2 WHERE id = $1`, orderID, status)
	if err != nil {
		return fmt.Errorf("order: set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordOutcomes appends outcome rows for the order in one transaction.
func (r *Repo) RecordOutcomes(ctx context.Context, orderID string, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("order: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, o := range outcomes {
		_, err := tx.Exec(ctx,
			`INSERT INTO order_outcomes (order_id, sku, amount_wholesale, succeeded, failure_reason)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			orderID, o.SKU, o.AmountWholesale.String(), o.Succeeded, o.FailureReason)
		if err != nil {
			return fmt.Errorf("order: insert outcome: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("order: commit: %w", err)
	}
	return nil
}

// Get loads the order header.
func (r *Repo) Get(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, reference, upstream_status, created_at
		FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.Reference, &o.UpstreamStatus, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

// List returns order headers newest first.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, reference, upstream_status, created_at
		FROM orders ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Reference, &o.UpstreamStatus, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("order: scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Count returns the total number of orders.
func (r *Repo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&total); err != nil {
		return 0, fmt.Errorf("order: count: %w", err)
	}
	return total, nil
}

// Outcomes loads every outcome row for the order in insertion order.
func (r *Repo) Outcomes(ctx context.Context, orderID string) ([]Outcome, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id::text, sku, amount_wholesale::text, succeeded, COALESCE(failure_reason, '')
		FROM order_outcomes WHERE order_id = $1
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o      Outcome
			amount string
		)
		if err := rows.Scan(&o.ID, &o.SKU, &amount, &o.Succeeded, &o.FailureReason); err != nil {
			return nil, fmt.Errorf("order: scan outcome: %w", err)
		}
		o.AmountWholesale, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("order: parse amount: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
