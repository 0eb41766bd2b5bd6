package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UnitType is how a product is sold.
type UnitType string

const (
	// UnitGrams products are priced per 500 g.
	UnitGrams UnitType = "grams"

	// UnitEach products are priced per unit.
	UnitEach UnitType = "unit"
)

// Valid reports whether u is a known unit type.
func (u UnitType) Valid() bool {
	return u == UnitGrams || u == UnitEach
}

// Product is the summary of a catalog product as returned by the backend.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	UnitType  UnitType        `json:"unitType"`
	Image     string          `json:"image,omitempty"`
	DeletedAt *time.Time      `json:"deletedAt,omitempty"`
}

// Deleted reports whether the product was soft-deleted by the backend.
func (p Product) Deleted() bool {
	return p.DeletedAt != nil
}

// ProductInput is the body of a create request.
type ProductInput struct {
	Name     string
	Price    decimal.Decimal
	UnitType UnitType
	Image    string
}

// Validate checks the required fields of a new product.
func (in ProductInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	if !in.Price.IsPositive() {
		return &ValidationError{Field: "price", Message: "must be greater than 0"}
	}
	if !in.UnitType.Valid() {
		return &ValidationError{Field: "unitType", Message: "must be grams or unit"}
	}
	return nil
}

// MarshalJSON encodes the price as a JSON number, the way the backend expects it.
func (in ProductInput) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name     string      `json:"name"`
		Price    json.Number `json:"price"`
		UnitType UnitType    `json:"unitType"`
		Image    string      `json:"image,omitempty"`
	}{
		Name:     strings.TrimSpace(in.Name),
		Price:    json.Number(in.Price.String()),
		UnitType: in.UnitType,
		Image:    in.Image,
	})
}

// ProductPatch is a partial update. Nil fields are left untouched.
type ProductPatch struct {
	Name     *string          `json:"name,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
	UnitType *UnitType        `json:"unitType,omitempty"`
	Image    *string          `json:"image,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.UnitType == nil && p.Image == nil
}

// Validate checks the fields present in the patch.
func (p ProductPatch) Validate() error {
	if p.Empty() {
		return &ValidationError{Field: "patch", Message: "no fields to update"}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if p.Price != nil && !p.Price.IsPositive() {
		return &ValidationError{Field: "price", Message: "must be greater than 0"}
	}
	if p.UnitType != nil && !p.UnitType.Valid() {
		return &ValidationError{Field: "unitType", Message: "must be grams or unit"}
	}
	return nil
}

// MarshalJSON encodes the price as a JSON number, matching ProductInput.
func (p ProductPatch) MarshalJSON() ([]byte, error) {
	var price *json.Number
	if p.Price != nil {
		n := json.Number(p.Price.String())
		price = &n
	}
	return json.Marshal(struct {
		Name     *string      `json:"name,omitempty"`
		Price    *json.Number `json:"price,omitempty"`
		UnitType *UnitType    `json:"unitType,omitempty"`
		Image    *string      `json:"image,omitempty"`
	}{
		Name:     p.Name,
		Price:    price,
		UnitType: p.UnitType,
		Image:    p.Image,
	})
}
