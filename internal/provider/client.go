package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/obs"
	"github.com/mzahrani/backend-voucherhub/internal/resilience"
)

// ErrProviderUnavailable wraps transport-level failures talking to the
// upstream voucher provider.
var ErrProviderUnavailable = errors.New("provider: upstream unavailable")

// CatalogOption is one sellable denomination of a provider product. All
// monetary figures are USD; discount is a fraction of the retail price.
type CatalogOption struct {
	SKU                  string           `json:"sku"`
	Name                 string           `json:"name"`
	RetailBaseUSD        decimal.Decimal  `json:"retail_price"`
	DiscountFraction     decimal.Decimal  `json:"discount"`
	WholesaleOverrideUSD *decimal.Decimal `json:"wholesale_price,omitempty"`
}

// CatalogProduct groups the options of one provider product.
type CatalogProduct struct {
	ProductCode string          `json:"product_code"`
	Name        string          `json:"name"`
	Options     []CatalogOption `json:"options"`
}

// OrderLine requests a quantity of one option in a purchase order.
type OrderLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// UnitResult is the provider's per-unit issuance outcome for an order line.
type UnitResult struct {
	SKU                string          `json:"sku"`
	AmountWholesaleUSD decimal.Decimal `json:"amount"`
	Succeeded          bool            `json:"succeeded"`
	FailureReason      string          `json:"failure_reason,omitempty"`
}

// Client talks to the upstream prepaid-voucher provider. Calls go through the
// resilience wrapper so retries and the circuit breaker apply uniformly.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *resilience.HTTPClient
}

// FetchCatalog retrieves the current product catalog snapshot.
func (c *Client) FetchCatalog(ctx context.Context) ([]CatalogProduct, error) {
	var payload struct {
		Products []CatalogProduct `json:"products"`
	}
	if err := c.get(ctx, "/v1/catalog", &payload); err != nil {
		return nil, err
	}
	return payload.Products, nil
}

// PlaceOrder submits a purchase order and returns the per-unit outcomes. The
// reference doubles as the provider-side idempotency key.
func (c *Client) PlaceOrder(ctx context.Context, reference string, lines []OrderLine) ([]UnitResult, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, errors.New("provider: order reference is required")
	}
	if len(lines) == 0 {
		return nil, errors.New("provider: order has no lines")
	}
	body := struct {
		Reference string      `json:"reference"`
		Lines     []OrderLine `json:"lines"`
	}{Reference: reference, Lines: lines}

	var payload struct {
		Units []UnitResult `json:"units"`
	}
	start := time.Now()
	err := c.post(ctx, "/v1/orders", body, &payload)
	result := "ok"
	if err != nil {
		result = "error"
	}
	if obs.ProviderOrderTotal != nil {
		obs.ProviderOrderTotal.WithLabelValues(result).Inc()
	}
	if obs.ProviderOrderLatency != nil {
		obs.ProviderOrderLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		return nil, err
	}
	return payload.Units, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(ctx, req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req, out)
}

func (c *Client) do(ctx context.Context, req *http.Request, out any) error {
	if c.HTTP == nil {
		return errors.New("provider: http client not configured")
	}
	if strings.TrimSpace(c.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider: %s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("provider: decode response: %w", err)
	}
	return nil
}
