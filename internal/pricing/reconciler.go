package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Fact carries the provider-supplied pricing inputs for one catalog option. A
// Fact is immutable for the lifetime of a catalog snapshot and replaced
// wholesale on the next fetch.
type Fact struct {
	RetailBaseUSD        decimal.Decimal
	DiscountFraction     decimal.Decimal
	WholesaleOverrideUSD *decimal.Decimal
}

// WholesaleBaseUSD resolves the effective wholesale cost basis: the explicit
// override when the provider supplies one, otherwise the discounted retail
// price.
func (f Fact) WholesaleBaseUSD() decimal.Decimal {
	if f.WholesaleOverrideUSD != nil {
		return *f.WholesaleOverrideUSD
	}
	return f.RetailBaseUSD.Mul(one.Sub(f.DiscountFraction))
}

// Conversion is the shared read-only context for a recompute batch.
type Conversion struct {
	Rate     decimal.Decimal
	Currency string
}

// State is the mutable custom-price/markup pair owned by a pricing session.
// After any recompute CustomPrice == WholesalePrice * (1 + MarkupPercent/100)
// up to one rounding unit.
type State struct {
	CustomPrice   decimal.Decimal
	MarkupPercent decimal.Decimal
}

// Warning signals a recoverable input condition. Warnings are surfaced to the
// caller instead of raised so interactive edits stay responsive.
type Warning int

const (
	// WarnNone means the recompute used the inputs as provided.
	WarnNone Warning = iota
	// WarnZeroWholesale means the wholesale price was zero and the markup was
	// resolved to zero instead of dividing.
	WarnZeroWholesale
	// WarnUnparsableInput means a non-numeric or empty driving value was
	// treated as zero.
	WarnUnparsableInput
)

func (w Warning) String() string {
	switch w {
	case WarnZeroWholesale:
		return "zero_wholesale"
	case WarnUnparsableInput:
		return "unparsable_input"
	default:
		return "none"
	}
}

// Class is the presentation bucket for a markup percentage.
type Class int

const (
	// ClassLoss marks a negative markup.
	ClassLoss Class = iota - 1
	// ClassNeutral marks a zero markup.
	ClassNeutral
	// ClassMargin marks a positive markup.
	ClassMargin
)

func (c Class) String() string {
	switch c {
	case ClassLoss:
		return "loss"
	case ClassMargin:
		return "margin"
	default:
		return "neutral"
	}
}

// WholesalePrice converts the effective wholesale cost basis into store
// currency.
func WholesalePrice(f Fact, c Conversion) decimal.Decimal {
	return f.WholesaleBaseUSD().Mul(c.Rate)
}

// FromCustomPrice derives the markup percentage implied by a store-currency
// custom price. A zero wholesale price resolves to markup 0 with
// WarnZeroWholesale rather than propagating a division by zero. Negative
// results are valid and never clamped.
func FromCustomPrice(f Fact, c Conversion, customPrice decimal.Decimal) (decimal.Decimal, Warning) {
	wholesale := WholesalePrice(f, c)
	if wholesale.IsZero() {
		return decimal.Zero, WarnZeroWholesale
	}
	markup := customPrice.Sub(wholesale).Div(wholesale).Mul(hundred)
	return markup, WarnNone
}

// FromMarkup derives the store-currency custom price implied by a markup
// percentage.
func FromMarkup(f Fact, c Conversion, markupPercent decimal.Decimal) decimal.Decimal {
	return WholesalePrice(f, c).Mul(one.Add(markupPercent.Div(hundred)))
}

// OnRateChange recomputes the markup after a conversion-rate change while
// holding the committed custom price fixed. The retailer's store-currency
// price must not silently move when only the rate moves.
func OnRateChange(f Fact, next Conversion, st State) (decimal.Decimal, Warning) {
	return FromCustomPrice(f, next, st.CustomPrice)
}

// Classify buckets a markup for presentation. Pure, no side effects.
func Classify(markupPercent decimal.Decimal) Class {
	switch markupPercent.Sign() {
	case -1:
		return ClassLoss
	case 1:
		return ClassMargin
	default:
		return ClassNeutral
	}
}

// ParseAmount converts raw user input into a decimal. Empty or non-numeric
// input yields zero with WarnUnparsableInput so a half-typed value never
// aborts the edit.
func ParseAmount(raw string) (decimal.Decimal, Warning) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, WarnUnparsableInput
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, WarnUnparsableInput
	}
	return value, WarnNone
}
