// Package cart holds the shopping cart: items keyed by product id whose
// quantities merge when the same product is added again.
package cart

import (
	"errors"
	"sort"
	"sync"

	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/shopspring/decimal"
)

// ErrItemNotFound is returned when an operation names a product not in the cart.
var ErrItemNotFound = errors.New("item not in cart")

// Item is one cart line. Quantity is grams for UnitGrams products and a
// count for UnitEach products.
type Item struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	UnitType domain.UnitType `json:"unitType"`
	Quantity int             `json:"quantity"`
}

// ItemFromProduct builds a cart line for p.
func ItemFromProduct(p domain.Product, quantity int) Item {
	return Item{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		UnitType: p.UnitType,
		Quantity: quantity,
	}
}

// LineTotal is the price of the line. Gram products are priced per 500 g.
func (i Item) LineTotal() decimal.Decimal {
	qty := decimal.NewFromInt(int64(i.Quantity))
	if i.UnitType == domain.UnitGrams {
		return i.Price.Mul(qty).Div(decimal.NewFromInt(GramStep))
	}
	return i.Price.Mul(qty)
}

func (i Item) validate() error {
	if i.ID <= 0 {
		return &domain.ValidationError{Field: "id", Message: "must be > 0"}
	}
	if i.Quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Message: "must be > 0"}
	}
	if !i.UnitType.Valid() {
		return &domain.ValidationError{Field: "unitType", Message: "must be grams or unit"}
	}
	return nil
}

// Cart is safe for concurrent use.
type Cart struct {
	mu    sync.RWMutex
	items map[int64]Item
}

// New creates an empty cart.
func New() *Cart {
	return &Cart{items: make(map[int64]Item)}
}

// Add puts item in the cart. Adding a product that is already present
// increases its quantity instead of creating a second line.
func (c *Cart) Add(item Item) error {
	if err := item.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[item.ID]; ok {
		existing.Quantity += item.Quantity
		c.items[item.ID] = existing
		return nil
	}
	c.items[item.ID] = item
	return nil
}

// Remove deletes the line for id. It reports whether a line was removed.
func (c *Cart) Remove(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[id]
	delete(c.items, id)
	return ok
}

// UpdateQuantity replaces the quantity of an existing line.
func (c *Cart) UpdateQuantity(id int64, quantity int) error {
	if quantity <= 0 {
		return &domain.ValidationError{Field: "quantity", Message: "must be > 0"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return ErrItemNotFound
	}
	item.Quantity = quantity
	c.items[id] = item
	return nil
}

// Get returns the line for id.
func (c *Cart) Get(id int64) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	return item, ok
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[int64]Item)
}

// Items returns the lines ordered by product id.
func (c *Cart) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.itemsLocked()
}

func (c *Cart) itemsLocked() []Item {
	out := make([]Item, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Total is the sum of all line totals rounded to two decimals.
func (c *Cart) Total() decimal.Decimal {
	return Total(c.Items())
}

// Total sums the line totals of items, rounded to two decimals.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

// Drain passes the current lines to fn while holding the cart lock and
// empties the cart when fn returns nil. No line can be added or changed
// between the copy fn sees and the clear. fn must not call into the cart.
func (c *Cart) Drain(fn func(items []Item) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := fn(c.itemsLocked()); err != nil {
		return err
	}
	c.items = make(map[int64]Item)
	return nil
}
