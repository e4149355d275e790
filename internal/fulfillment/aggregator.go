package fulfillment

import "github.com/shopspring/decimal"

// Outcome records the result of one attempted voucher issuance for a purchase
// order line. Outcomes are written once by the fulfillment process and never
// mutated.
type Outcome struct {
	AmountWholesale decimal.Decimal
	Succeeded       bool
}

// DisplayStatus classifies a finished outcome list for presentation.
type DisplayStatus string

const (
	// StatusNoOutcomes means no fulfillment was attempted; the upstream order
	// status is passed through unchanged and must not be read as a failure.
	StatusNoOutcomes DisplayStatus = "no_outcomes"
	// StatusFailed means every attempted unit failed.
	StatusFailed DisplayStatus = "failed"
	// StatusPartial means some but not all units were issued.
	StatusPartial DisplayStatus = "partial"
	// StatusComplete means every unit was issued.
	StatusComplete DisplayStatus = "complete"
)

// StatusClass is the presentation bucket matching a display status.
type StatusClass string

const (
	ClassMuted   StatusClass = "muted"
	ClassDanger  StatusClass = "danger"
	ClassWarning StatusClass = "warning"
	ClassSuccess StatusClass = "success"
)

// Summary is the aggregate view of one order's outcomes. It is derived on
// demand and never persisted.
type Summary struct {
	Total           int
	Successful      int
	Failed          int
	SuccessRate     *int
	SuccessfulCost  decimal.Decimal
	Status          DisplayStatus
	StatusClass     StatusClass
	UpstreamStatus  string
	InvoiceEligible bool
}

// Aggregate folds an immutable outcome list into a single summary. The fold
// has no side effects and no ordering dependence: failed attempts contribute
// zero cost, the success rate is defined only when at least one unit was
// attempted, and an empty list keeps the upstream status visible instead of
// reporting a failure.
func Aggregate(outcomes []Outcome, upstreamStatus string) Summary {
	sum := Summary{
		SuccessfulCost: decimal.Zero,
		UpstreamStatus: upstreamStatus,
	}
	for _, o := range outcomes {
		sum.Total++
		if o.Succeeded {
			sum.Successful++
			sum.SuccessfulCost = sum.SuccessfulCost.Add(o.AmountWholesale)
		} else {
			sum.Failed++
		}
	}

	switch {
	case sum.Total == 0:
		sum.Status = StatusNoOutcomes
		sum.StatusClass = ClassMuted
	case sum.Successful == 0:
		sum.Status = StatusFailed
		sum.StatusClass = ClassDanger
	case sum.Successful < sum.Total:
		sum.Status = StatusPartial
		sum.StatusClass = ClassWarning
	default:
		sum.Status = StatusComplete
		sum.StatusClass = ClassSuccess
	}

	if sum.Total > 0 {
		rate := int(decimal.NewFromInt(int64(sum.Successful * 100)).
			Div(decimal.NewFromInt(int64(sum.Total))).
			Round(0).IntPart())
		sum.SuccessRate = &rate
	}
	sum.InvoiceEligible = sum.Successful > 0
	return sum
}
