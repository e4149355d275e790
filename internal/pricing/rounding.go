package pricing

import "github.com/shopspring/decimal"

// Display and commit rounding rules shared by the reconciler and its callers.
// USD figures keep a 3-decimal internal resolution until the final 2-decimal
// display rounding so cumulative error stays below half a cent.

var (
	one        = decimal.NewFromInt(1)
	ten        = decimal.NewFromInt(10)
	hundred    = decimal.NewFromInt(100)
	thousandth = decimal.NewFromInt(1000)
	twentieth  = decimal.NewFromInt(20)
	quarterDen = decimal.NewFromInt(4)
)

// ToCents rounds to the internal 3-decimal USD resolution.
func ToCents(x decimal.Decimal) decimal.Decimal {
	return roundPer(x, thousandth)
}

// ToNickel rounds to the nearest 0.05.
func ToNickel(x decimal.Decimal) decimal.Decimal {
	return roundPer(x, twentieth)
}

// ToQuarter rounds to the nearest 0.25.
func ToQuarter(x decimal.Decimal) decimal.Decimal {
	return roundPer(x, quarterDen)
}

// ToWhole rounds to the nearest whole unit.
func ToWhole(x decimal.Decimal) decimal.Decimal {
	return x.Round(0)
}

// Smart selects a display granularity by magnitude: sub-unit amounts keep cent
// resolution, larger amounts round progressively coarser.
func Smart(x decimal.Decimal) decimal.Decimal {
	switch {
	case x.LessThan(one):
		return ToCents(x)
	case x.LessThan(ten):
		return ToNickel(x)
	case x.LessThan(hundred):
		return ToQuarter(x)
	default:
		return ToWhole(x)
	}
}

// CeilToCents rounds up to the internal 3-decimal resolution. Exposed for
// callers wanting conservative pricing; the default reconciler path does not
// use it.
func CeilToCents(x decimal.Decimal) decimal.Decimal {
	return x.Mul(thousandth).Ceil().Div(thousandth)
}

// FloorToCents rounds down to the internal 3-decimal resolution.
func FloorToCents(x decimal.Decimal) decimal.Decimal {
	return x.Mul(thousandth).Floor().Div(thousandth)
}

// ToMoney applies the 2-decimal commit rounding used for store-currency prices
// and markup percentages. It is applied only at commit boundaries, never while
// a value is still being edited.
func ToMoney(x decimal.Decimal) decimal.Decimal {
	return x.Round(2)
}

func roundPer(x, per decimal.Decimal) decimal.Decimal {
	return x.Mul(per).Round(0).Div(per)
}
