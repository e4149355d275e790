package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/mzahrani/backend-voucherhub/internal/obs"
)

// MetricsNotifier counts emitted events per topic.
type MetricsNotifier struct{}

func (MetricsNotifier) Notify(_ context.Context, event DomainEvent) error {
	if obs.DomainEventTotal != nil {
		obs.DomainEventTotal.WithLabelValues(event.Topic).Inc()
	}
	return nil
}

// LogNotifier writes one structured log line per emitted event.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, event DomainEvent) error {
	n.Logger.Info().
		Str("topic", event.Topic).
		Str("aggregate_key", event.AggregateKey).
		Str("event_id", event.ID).
		Msg("domain_event")
	return nil
}
