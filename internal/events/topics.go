package events

import "github.com/shopspring/decimal"

// Topic constants for domain events emitted by the platform.
const (
	TopicOptionPriceUpdated      = "option.price.updated"
	TopicOrderOutcomesRecorded   = "order.outcomes.recorded"
	TopicStockReplenishRequested = "stock.replenishment.requested"
	TopicCatalogRefreshed        = "catalog.refreshed"
	TopicConversionRateChanged   = "pricing.rate.changed"
)

// DefaultTopics returns the canonical list of emitted topics.
func DefaultTopics() []string {
	return []string{
		TopicOptionPriceUpdated,
		TopicOrderOutcomesRecorded,
		TopicStockReplenishRequested,
		TopicCatalogRefreshed,
		TopicConversionRateChanged,
	}
}

// OptionPriceUpdated is the payload for TopicOptionPriceUpdated.
type OptionPriceUpdated struct {
	Option        string          `json:"option"`
	CustomPrice   decimal.Decimal `json:"custom_price"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
	Class         string          `json:"class"`
}

// OrderOutcomesRecorded is the payload for TopicOrderOutcomesRecorded.
type OrderOutcomesRecorded struct {
	OrderID    string `json:"order_id"`
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Status     string `json:"status"`
}

// StockReplenishRequested is the payload for TopicStockReplenishRequested.
type StockReplenishRequested struct {
	Option        string `json:"option"`
	QtyToPurchase int    `json:"qty_to_purchase"`
}

// ConversionRateChanged is the payload for TopicConversionRateChanged.
type ConversionRateChanged struct {
	Rate     decimal.Decimal `json:"rate"`
	Currency string          `json:"currency"`
	Options  int             `json:"options"`
}

// CatalogRefreshed is the payload for TopicCatalogRefreshed.
type CatalogRefreshed struct {
	Products int `json:"products"`
}
