package cart

import (
	"fmt"

	"github.com/Sternrassler/storefront-client/pkg/domain"
)

// Quantity limits offered when choosing how much to add.
const (
	GramStep = 500
	MaxGrams = 50000
	MaxUnits = 99
)

// DefaultQuantity is the starting quantity for a product: 500 g or 1 unit.
func DefaultQuantity(unit domain.UnitType) int {
	if unit == domain.UnitGrams {
		return GramStep
	}
	return 1
}

// NextQuantity steps q up: by 500 g up to 50 kg, or by one unit up to 99.
// At the upper bound q is returned unchanged.
func NextQuantity(unit domain.UnitType, q int) int {
	if unit == domain.UnitGrams {
		next := (q/GramStep + 1) * GramStep
		if next > MaxGrams {
			return q
		}
		return next
	}
	if q >= MaxUnits {
		return MaxUnits
	}
	return q + 1
}

// PrevQuantity steps q down, never below 500 g or one unit.
func PrevQuantity(unit domain.UnitType, q int) int {
	if unit == domain.UnitGrams {
		prev := ((q+GramStep-1)/GramStep - 1) * GramStep
		if prev < GramStep {
			return GramStep
		}
		return prev
	}
	if q <= 1 {
		return 1
	}
	return q - 1
}

// FormatQuantity renders q for display: "500 g", "1.5 kg" or "3".
func FormatQuantity(unit domain.UnitType, q int) string {
	if unit != domain.UnitGrams {
		return fmt.Sprintf("%d", q)
	}
	if q >= 1000 {
		return fmt.Sprintf("%.1f kg", float64(q)/1000)
	}
	return fmt.Sprintf("%d g", q)
}
