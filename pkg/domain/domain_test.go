package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLastPage(t *testing.T) {
	tests := []struct {
		name  string
		total int
		limit int
		want  int
	}{
		{name: "empty listing", total: 0, limit: 5, want: 1},
		{name: "exact multiple", total: 10, limit: 5, want: 2},
		{name: "partial last page", total: 11, limit: 5, want: 3},
		{name: "single item", total: 1, limit: 5, want: 1},
		{name: "invalid limit", total: 10, limit: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LastPage(tt.total, tt.limit); got != tt.want {
				t.Errorf("LastPage(%d, %d) = %d, want %d", tt.total, tt.limit, got, tt.want)
			}
		})
	}
}

func TestParseSort(t *testing.T) {
	tests := []struct {
		raw     string
		want    Sort
		wantErr bool
	}{
		{raw: "", want: DefaultSort},
		{raw: "price_asc", want: SortPriceAsc},
		{raw: "name_desc", want: SortNameDesc},
		{raw: "createdAt_desc", want: SortCreatedAtDesc},
		{raw: "random", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSort(tt.raw)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("ParseSort(%q) error = %v, want ValidationError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseSort(%q) unexpected error: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseSort(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestProduct_PriceAcceptsStringOrNumber(t *testing.T) {
	for _, body := range []string{
		`{"id":1,"name":"Oregano","price":"1500.50","unitType":"grams"}`,
		`{"id":1,"name":"Oregano","price":1500.5,"unitType":"grams"}`,
	} {
		var p Product
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", body, err)
		}
		if !p.Price.Equal(decimal.RequireFromString("1500.5")) {
			t.Errorf("Price = %s, want 1500.5", p.Price)
		}
		if p.Deleted() {
			t.Error("product without deletedAt reported as deleted")
		}
	}
}

func TestProductInput_Validate(t *testing.T) {
	tests := []struct {
		name  string
		in    ProductInput
		field string
	}{
		{name: "valid", in: ProductInput{Name: "Comino", Price: decimal.NewFromInt(900), UnitType: UnitGrams}},
		{name: "missing name", in: ProductInput{Name: "  ", Price: decimal.NewFromInt(1), UnitType: UnitEach}, field: "name"},
		{name: "zero price", in: ProductInput{Name: "Comino", UnitType: UnitEach}, field: "price"},
		{name: "bad unit", in: ProductInput{Name: "Comino", Price: decimal.NewFromInt(1), UnitType: "kg"}, field: "unitType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("Validate() = %v, want ValidationError on %q", err, tt.field)
			}
		})
	}
}

func TestProductInput_MarshalPriceAsNumber(t *testing.T) {
	in := ProductInput{Name: " Pimienta ", Price: decimal.RequireFromString("1500.50"), UnitType: UnitGrams}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"name":"Pimienta","price":1500.5,"unitType":"grams"}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}

func TestProductPatch_Validate(t *testing.T) {
	if err := (ProductPatch{}).Validate(); err == nil {
		t.Error("empty patch should not validate")
	}
	name := "Nuevo"
	if err := (ProductPatch{Name: &name}).Validate(); err != nil {
		t.Errorf("name-only patch: %v", err)
	}
	price := decimal.NewFromInt(-1)
	if err := (ProductPatch{Price: &price}).Validate(); err == nil {
		t.Error("negative price patch should not validate")
	}
}

func TestProductPatch_MarshalPriceAsNumber(t *testing.T) {
	price := decimal.RequireFromString("1500.50")
	data, err := json.Marshal(ProductPatch{Price: &price})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := `{"price":1500.5}`; string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	name := "Pimienta negra"
	data, err = json.Marshal(ProductPatch{Name: &name})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := `{"name":"Pimienta negra"}`; string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	// The backend's decoder reads the number back.
	var back ProductPatch
	if err := json.Unmarshal([]byte(`{"price":1500.5}`), &back); err != nil || back.Price == nil || !back.Price.Equal(price) {
		t.Errorf("Unmarshal = %+v, %v", back, err)
	}
}
