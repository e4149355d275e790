package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed EventStore.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("events: pool is required")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) InsertDomainEvent(ctx context.Context, topic, aggregateKey string, payload []byte) (DomainEvent, error) {
	var ev DomainEvent
	err := s.pool.QueryRow(ctx,
		`INSERT INTO domain_events (topic, aggregate_key, payload)
		VALUES ($1, $2, $3)
		RETURNING id::text, topic, aggregate_key, payload, occurred_at`,
		topic, aggregateKey, payload).
		Scan(&ev.ID, &ev.Topic, &ev.AggregateKey, &ev.Payload, &ev.OccurredAt)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("events: insert: %w", err)
	}
	return ev, nil
}

// Recent returns the newest events for one topic, most recent first.
func (s *Store) Recent(ctx context.Context, topic string, limit int) ([]DomainEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, topic, aggregate_key, payload, occurred_at
		FROM domain_events WHERE topic = $1
		ORDER BY occurred_at DESC LIMIT $2`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("events: recent: %w", err)
	}
	defer rows.Close()

	var out []DomainEvent
	for rows.Next() {
		var ev DomainEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.AggregateKey, &ev.Payload, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
