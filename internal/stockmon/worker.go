package stockmon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mzahrani/backend-voucherhub/internal/lock"
	"github.com/mzahrani/backend-voucherhub/internal/obs"
	"github.com/mzahrani/backend-voucherhub/internal/order"
	"github.com/mzahrani/backend-voucherhub/internal/queue"
)

type orderPlacer interface {
	Place(ctx context.Context, lines []order.Line) (order.Detail, error)
}

type stockAdjuster interface {
	AdjustStock(ctx context.Context, code string, delta int) error
}

// Replenisher handles queued replenishment tasks: it purchases the shortfall
// upstream and credits the successful units back into the tracked stock. A
// per-option lock keeps concurrent workers from buying the same shortage
// twice.
type Replenisher struct {
	Orders  orderPlacer
	Stock   stockAdjuster
	Locker  lock.Locker
	LockTTL time.Duration
	Prefix  string
	Logger  zerolog.Logger
}

// Handle processes one queue task of kind "replenish".
func (r Replenisher) Handle(ctx context.Context, t queue.Task) error {
	var task ReplenishTask
	if err := json.Unmarshal(t.Payload, &task); err != nil {
		r.record("invalid_payload")
		return fmt.Errorf("stockmon: decode task: %w", err)
	}
	if task.Option == "" || task.QtyToPurchase < 1 {
		r.record("invalid_payload")
		return errors.New("stockmon: task needs an option and a positive quantity")
	}

	ttl := r.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lockKey := r.lockKey(task.Option)
	return r.Locker.WithLock(ctx, lockKey, ttl, func(ctx context.Context) error {
		detail, err := r.Orders.Place(ctx, []order.Line{{SKU: task.Option, Quantity: task.QtyToPurchase}})
		if err != nil {
			r.record("order_failed")
			return err
		}
		if detail.Summary.Successful > 0 && r.Stock != nil {
			if err := r.Stock.AdjustStock(ctx, task.Option, detail.Summary.Successful); err != nil {
				r.record("stock_update_failed")
				return err
			}
		}
		r.record(string(detail.Summary.Status))
		r.Logger.Info().
			Str("option", task.Option).
			Int("requested", task.QtyToPurchase).
			Int("purchased", detail.Summary.Successful).
			Msg("replenishment processed")
		return nil
	})
}

func (r Replenisher) lockKey(option string) string {
	if r.Prefix == "" {
		return "lock:replenish:" + option
	}
	return r.Prefix + ":lock:replenish:" + option
}

func (r Replenisher) record(result string) {
	if obs.ReplenishTaskTotal != nil {
		obs.ReplenishTaskTotal.WithLabelValues(result).Inc()
	}
}
