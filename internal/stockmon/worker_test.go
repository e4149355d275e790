package stockmon_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mzahrani/backend-voucherhub/internal/fulfillment"
	"github.com/mzahrani/backend-voucherhub/internal/lock"
	"github.com/mzahrani/backend-voucherhub/internal/order"
	"github.com/mzahrani/backend-voucherhub/internal/queue"
	"github.com/mzahrani/backend-voucherhub/internal/stockmon"
)

type stubOrders struct {
	detail order.Detail
	err    error
	lines  [][]order.Line
}

func (s *stubOrders) Place(_ context.Context, lines []order.Line) (order.Detail, error) {
	s.lines = append(s.lines, lines)
	return s.detail, s.err
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client}
}

func replenishTask(t *testing.T, option string, qty int) queue.Task {
	t.Helper()
	payload, err := json.Marshal(stockmon.ReplenishTask{Option: option, QtyToPurchase: qty})
	require.NoError(t, err)
	return queue.Task{Kind: stockmon.TaskKindReplenish, Payload: payload}
}

func TestHandlePurchasesAndCreditsStock(t *testing.T) {
	repo := newMemLevels(stockmon.Level{OptionCode: "GC-10", CurrentStock: 3, MinimumThreshold: 10})
	orders := &stubOrders{detail: order.Detail{
		Summary: fulfillment.Summary{Total: 7, Successful: 7, Status: fulfillment.StatusComplete},
	}}
	r := stockmon.Replenisher{
		Orders: orders,
		Stock:  repo,
		Locker: newLocker(t),
		Logger: zerolog.Nop(),
	}

	require.NoError(t, r.Handle(context.Background(), replenishTask(t, "GC-10", 7)))
	require.Len(t, orders.lines, 1)
	require.Equal(t, []order.Line{{SKU: "GC-10", Quantity: 7}}, orders.lines[0])

	level, err := repo.Get(context.Background(), "GC-10")
	require.NoError(t, err)
	require.Equal(t, 10, level.CurrentStock)
}

func TestHandlePartialFulfillmentCreditsSuccessfulOnly(t *testing.T) {
	repo := newMemLevels(stockmon.Level{OptionCode: "GC-10", CurrentStock: 3, MinimumThreshold: 10})
	orders := &stubOrders{detail: order.Detail{
		Summary: fulfillment.Summary{Total: 7, Successful: 4, Failed: 3, Status: fulfillment.StatusPartial},
	}}
	r := stockmon.Replenisher{
		Orders: orders,
		Stock:  repo,
		Locker: newLocker(t),
		Logger: zerolog.Nop(),
	}

	require.NoError(t, r.Handle(context.Background(), replenishTask(t, "GC-10", 7)))
	level, err := repo.Get(context.Background(), "GC-10")
	require.NoError(t, err)
	require.Equal(t, 7, level.CurrentStock)
}

func TestHandleOrderFailurePropagatesForRetry(t *testing.T) {
	repo := newMemLevels(stockmon.Level{OptionCode: "GC-10", CurrentStock: 3, MinimumThreshold: 10})
	orders := &stubOrders{err: errors.New("provider down")}
	r := stockmon.Replenisher{
		Orders: orders,
		Stock:  repo,
		Locker: newLocker(t),
		Logger: zerolog.Nop(),
	}

	require.Error(t, r.Handle(context.Background(), replenishTask(t, "GC-10", 7)))
	level, err := repo.Get(context.Background(), "GC-10")
	require.NoError(t, err)
	require.Equal(t, 3, level.CurrentStock, "stock untouched when the purchase fails")
}

func TestHandleRejectsMalformedTask(t *testing.T) {
	r := stockmon.Replenisher{
		Orders: &stubOrders{},
		Locker: newLocker(t),
		Logger: zerolog.Nop(),
	}

	require.Error(t, r.Handle(context.Background(), queue.Task{Payload: []byte("{nope")}))
	require.Error(t, r.Handle(context.Background(), replenishTask(t, "", 1)))
	require.Error(t, r.Handle(context.Background(), replenishTask(t, "GC-10", 0)))
}
