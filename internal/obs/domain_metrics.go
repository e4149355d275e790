package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceRecomputeTotal counts price recomputations by driving input and warning.
	PriceRecomputeTotal *prometheus.CounterVec
	// PriceCommitTotal tracks debounced price state commits by field and result.
	PriceCommitTotal *prometheus.CounterVec
	// OrderAggregateTotal counts order outcome aggregations by display status.
	OrderAggregateTotal *prometheus.CounterVec
	// ProviderOrderTotal counts upstream voucher order placements by result.
	ProviderOrderTotal *prometheus.CounterVec
	// ProviderOrderLatency records upstream order placement latency in milliseconds.
	ProviderOrderLatency *prometheus.HistogramVec
	// ReplenishTaskTotal counts stock replenishment task outcomes.
	ReplenishTaskTotal *prometheus.CounterVec
	// DomainEventTotal counts persisted domain events by topic.
	DomainEventTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceRecomputeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_recompute_total",
			Help:      "Count of price/markup recomputations by driver and warning.",
		}, []string{"driver", "warning"})
		PriceCommitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_commit_total",
			Help:      "Count of debounced price state commits by field and result.",
		}, []string{"field", "result"})
		OrderAggregateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_aggregate_total",
			Help:      "Count of order outcome aggregations by display status.",
		}, []string{"status"})
		ProviderOrderTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_order_total",
			Help:      "Count of upstream voucher order placements by result.",
		}, []string{"result"})
		ProviderOrderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_order_duration_ms",
			Help:      "Latency for upstream voucher order placements in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"})
		ReplenishTaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replenish_task_total",
			Help:      "Count of stock replenishment task outcomes.",
		}, []string{"result"})
		DomainEventTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "domain_event_total",
			Help:      "Count of persisted domain events by topic.",
		}, []string{"topic"})

		mustRegisterCollector(reg, PriceRecomputeTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceRecomputeTotal = v
			}
		})
		mustRegisterCollector(reg, PriceCommitTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceCommitTotal = v
			}
		})
		mustRegisterCollector(reg, OrderAggregateTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderAggregateTotal = v
			}
		})
		mustRegisterCollector(reg, ProviderOrderTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ProviderOrderTotal = v
			}
		})
		mustRegisterCollector(reg, ProviderOrderLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				ProviderOrderLatency = v
			}
		})
		mustRegisterCollector(reg, ReplenishTaskTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				ReplenishTaskTotal = v
			}
		})
		mustRegisterCollector(reg, DomainEventTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DomainEventTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
