// Package checkout turns a cart into an order and hands it off to the shop
// over WhatsApp.
package checkout

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/Sternrassler/storefront-client/pkg/cart"
	"github.com/Sternrassler/storefront-client/pkg/domain"
	"github.com/Sternrassler/storefront-client/pkg/logging"
	"github.com/shopspring/decimal"
)

// HandoffBaseURL is the click-to-chat endpoint.
const HandoffBaseURL = "https://wa.me/"

// Details is what the customer enters on the checkout form.
type Details struct {
	CustomerName    string
	DeliveryAddress string
	Notes           string
}

// Order is a validated snapshot of the cart.
type Order struct {
	Items           []cart.Item
	Total           decimal.Decimal
	CustomerName    string
	DeliveryAddress string
	Notes           string
}

// Handoff is the result of a successful checkout.
type Handoff struct {
	Order Order
	URL   string
}

// NewOrder snapshots c with the customer's details.
func NewOrder(c *cart.Cart, d Details) Order {
	return orderFromItems(c.Items(), d)
}

func orderFromItems(items []cart.Item, d Details) Order {
	return Order{
		Items:           items,
		Total:           cart.Total(items),
		CustomerName:    strings.TrimSpace(d.CustomerName),
		DeliveryAddress: strings.TrimSpace(d.DeliveryAddress),
		Notes:           strings.TrimSpace(d.Notes),
	}
}

// Validate checks the order can be sent.
func (o Order) Validate() error {
	if len(o.Items) == 0 {
		return &domain.ValidationError{Field: "cart", Message: "is empty"}
	}
	if o.DeliveryAddress == "" {
		return &domain.ValidationError{Field: "delivery_address", Message: "is required"}
	}
	return nil
}

// Message renders the order as plain text.
func Message(o Order) string {
	var b strings.Builder

	b.WriteString("New order\n")
	if o.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", o.CustomerName)
	}
	fmt.Fprintf(&b, "Delivery address: %s\n", o.DeliveryAddress)
	b.WriteString("\n")

	for _, item := range o.Items {
		fmt.Fprintf(&b, "- %s x %s: $%s\n",
			item.Name,
			cart.FormatQuantity(item.UnitType, item.Quantity),
			item.LineTotal().StringFixed(2))
	}

	fmt.Fprintf(&b, "\nTotal: $%s", o.Total.StringFixed(2))
	if o.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", o.Notes)
	}
	return b.String()
}

// HandoffURL builds the click-to-chat link for phone with message prefilled.
// Only the digits of phone are kept.
func HandoffURL(phone, message string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if digits == "" {
		return "", &domain.ValidationError{Field: "phone", Message: "is required"}
	}

	// wa.me expects %20 rather than + for spaces.
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return HandoffBaseURL + digits + "?text=" + text, nil
}

// Checkout validates the cart and details, builds the handoff link and
// empties the cart. The cart is left untouched when anything fails.
func Checkout(c *cart.Cart, d Details, phone string) (Handoff, error) {
	var handoff Handoff
	err := c.Drain(func(items []cart.Item) error {
		order := orderFromItems(items, d)
		if err := order.Validate(); err != nil {
			return err
		}

		link, err := HandoffURL(phone, Message(order))
		if err != nil {
			return err
		}
		handoff = Handoff{Order: order, URL: link}
		return nil
	})
	if err != nil {
		return Handoff{}, err
	}

	logger := logging.NewLogger("checkout")
	logger.Info().
		Int("items", len(handoff.Order.Items)).
		Str("total", handoff.Order.Total.StringFixed(2)).
		Msg("Order handed off")

	return handoff, nil
}
