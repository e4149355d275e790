package stock

import "errors"

var (
	// ErrNegativeStock is returned when the current stock input is negative.
	ErrNegativeStock = errors.New("stock: current stock must not be negative")
	// ErrNegativeThreshold is returned when the minimum threshold input is negative.
	ErrNegativeThreshold = errors.New("stock: minimum threshold must not be negative")
)

// Level is the stock input pair supplied by the stock collaborator.
type Level struct {
	CurrentStock     int
	MinimumThreshold int
}

// Plan is the derived replenishment decision for one option. It is recomputed
// from the current inputs on every call and never cached across input changes.
type Plan struct {
	QtyToPurchase int
	ShouldSelect  bool
}

// Validate rejects malformed levels at the boundary. The calculator itself
// assumes non-negative inputs and never silently clamps.
func Validate(l Level) error {
	if l.CurrentStock < 0 {
		return ErrNegativeStock
	}
	if l.MinimumThreshold < 0 {
		return ErrNegativeThreshold
	}
	return nil
}

// QtyToPurchase returns how many units are needed to reach the minimum
// threshold, never below zero.
func QtyToPurchase(currentStock, minimumThreshold int) int {
	qty := minimumThreshold - currentStock
	if qty < 0 {
		return 0
	}
	return qty
}

// BuildPlan derives the purchase quantity and selection flag. An item is
// flagged iff it needs at least one unit; a zero threshold means "no minimum"
// and the item is never auto-selected regardless of stock.
func BuildPlan(l Level) Plan {
	qty := QtyToPurchase(l.CurrentStock, l.MinimumThreshold)
	return Plan{
		QtyToPurchase: qty,
		ShouldSelect:  qty > 0,
	}
}
