package domain

import "fmt"

// Sort is the ordering requested from the product listing.
type Sort string

const (
	SortPriceAsc      Sort = "price_asc"
	SortPriceDesc     Sort = "price_desc"
	SortNameAsc       Sort = "name_asc"
	SortNameDesc      Sort = "name_desc"
	SortCreatedAtDesc Sort = "createdAt_desc"
)

// DefaultSort is substituted wherever a sort is absent.
// It is the single default used for cache keys and for outgoing requests.
const DefaultSort = SortCreatedAtDesc

// Sorts lists every accepted sort order.
var Sorts = []Sort{SortPriceAsc, SortPriceDesc, SortNameAsc, SortNameDesc, SortCreatedAtDesc}

// Valid reports whether s is one of the enumerated sort orders.
func (s Sort) Valid() bool {
	for _, known := range Sorts {
		if s == known {
			return true
		}
	}
	return false
}

// OrDefault returns s, or DefaultSort when s is empty.
func (s Sort) OrDefault() Sort {
	if s == "" {
		return DefaultSort
	}
	return s
}

// ParseSort converts a query value into a Sort. The empty string maps to DefaultSort.
func ParseSort(raw string) (Sort, error) {
	s := Sort(raw).OrDefault()
	if !s.Valid() {
		return "", &ValidationError{Field: "sort", Message: fmt.Sprintf("unknown sort %q", raw)}
	}
	return s, nil
}
