package stockmon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mzahrani/backend-voucherhub/internal/events"
	"github.com/mzahrani/backend-voucherhub/internal/queue"
	"github.com/mzahrani/backend-voucherhub/internal/stock"
)

// TaskKindReplenish is the queue kind consumed by the replenishment worker.
const TaskKindReplenish = "replenish"

// ReplenishTask is the queue payload for one replenishment purchase.
type ReplenishTask struct {
	Option        string `json:"option"`
	QtyToPurchase int    `json:"qty_to_purchase"`
}

type levelStore interface {
	List(ctx context.Context) ([]Level, error)
	Get(ctx context.Context, code string) (Level, error)
	SetThreshold(ctx context.Context, code string, threshold int) error
	AdjustStock(ctx context.Context, code string, delta int) error
}

type enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

type ServiceConfig struct {
	Repo   levelStore
	Queue  enqueuer
	Bus    *events.Bus
	Logger zerolog.Logger
}

// Service derives replenishment plans from tracked stock levels and turns
// selected plans into queued purchase tasks.
type Service struct {
	repo   levelStore
	queue  enqueuer
	bus    *events.Bus
	logger zerolog.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repo == nil {
		return nil, errors.New("stockmon: repo is required")
	}
	return &Service{
		repo:   cfg.Repo,
		queue:  cfg.Queue,
		bus:    cfg.Bus,
		logger: cfg.Logger.With().Str("component", "stockmon").Logger(),
	}, nil
}

// PlanRow pairs a tracked level with its derived purchase plan.
type PlanRow struct {
	Level Level
	Plan  stock.Plan
}

// Plans derives the purchase plan for every tracked level.
func (s *Service) Plans(ctx context.Context) ([]PlanRow, error) {
	levels, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]PlanRow, 0, len(levels))
	for _, l := range levels {
		level := stock.Level{
			CurrentStock:     l.CurrentStock,
			MinimumThreshold: l.MinimumThreshold,
		}
		if err := stock.Validate(level); err != nil {
			return nil, fmt.Errorf("stockmon: plan for %s: %w", l.OptionCode, err)
		}
		rows = append(rows, PlanRow{Level: l, Plan: stock.BuildPlan(level)})
	}
	return rows, nil
}

// SetThreshold validates and stores a new minimum threshold.
func (s *Service) SetThreshold(ctx context.Context, code string, threshold int) error {
	if threshold < 0 {
		return stock.ErrNegativeThreshold
	}
	return s.repo.SetThreshold(ctx, code, threshold)
}

// RequestReplenishment enqueues one purchase task per selected plan and
// returns the queued tasks. The option code doubles as the idempotency key so
// repeated sweeps never double-buy the same shortage.
func (s *Service) RequestReplenishment(ctx context.Context) ([]ReplenishTask, error) {
	if s.queue == nil {
		return nil, errors.New("stockmon: queue is not configured")
	}
	rows, err := s.Plans(ctx)
	if err != nil {
		return nil, err
	}
	var queued []ReplenishTask
	for _, row := range rows {
		if !row.Plan.ShouldSelect {
			continue
		}
		task := ReplenishTask{Option: row.Level.OptionCode, QtyToPurchase: row.Plan.QtyToPurchase}
		payload, err := json.Marshal(task)
		if err != nil {
			return nil, err
		}
		err = s.queue.Enqueue(ctx, queue.Task{
			Kind:           TaskKindReplenish,
			Payload:        payload,
			IdempotencyKey: task.Option,
		})
		if err != nil {
			return nil, fmt.Errorf("stockmon: enqueue %s: %w", task.Option, err)
		}
		queued = append(queued, task)
		s.logger.Info().Str("option", task.Option).Int("qty", task.QtyToPurchase).Msg("replenishment queued")
		if s.bus != nil {
			_, emitErr := s.bus.Emit(ctx, events.TopicStockReplenishRequested, task.Option, events.StockReplenishRequested{
				Option:        task.Option,
				QtyToPurchase: task.QtyToPurchase,
			})
			if emitErr != nil {
				s.logger.Warn().Err(emitErr).Str("option", task.Option).Msg("event_emit_failed")
			}
		}
	}
	return queued, nil
}
