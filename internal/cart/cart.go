package cart

import (
	"context"

	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Item is a single cart line. Quantity is always >= 1; dropping below 1
// removes the line instead.
type Item struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Image         string          `json:"image"`
	Quantity      int             `json:"quantity"`
	PriceID       string          `json:"price_id"`
	Mode          string          `json:"mode"`
}

// Cart aggregates line items and at most one active discount code. Every
// mutation persists the full state through the backing Store immediately.
type Cart struct {
	id       string
	items    []Item
	discount *DiscountCode
	catalog  Catalog
	store    Store
	logger   *zap.Logger
}

// Load rehydrates a cart from the store. Missing or malformed stored data
// falls back to an empty cart rather than failing.
func Load(ctx context.Context, store Store, catalog Catalog, id string) *Cart {
	c := &Cart{
		id:      id,
		catalog: catalog,
		store:   store,
		logger:  util.GetLogger(),
	}

	items, err := store.LoadItems(ctx, id)
	if err != nil {
		c.logger.Warn("Failed to load cart items, starting empty",
			zap.String("cart_id", id), zap.Error(err))
	} else {
		c.items = items
	}

	discount, err := store.LoadDiscount(ctx, id)
	if err != nil {
		c.logger.Warn("Failed to load cart discount, starting without one",
			zap.String("cart_id", id), zap.Error(err))
	} else {
		c.discount = discount
	}

	return c
}

// ID returns the cart identifier.
func (c *Cart) ID() string { return c.id }

// Items returns a copy of the current line items.
func (c *Cart) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Discount returns the active discount code, if any.
func (c *Cart) Discount() *DiscountCode { return c.discount }

// AddItem inserts a new line with quantity 1, or increments the quantity of
// an existing line with the same id. It always succeeds.
func (c *Cart) AddItem(ctx context.Context, item Item) error {
	for i := range c.items {
		if c.items[i].ID == item.ID {
			c.items[i].Quantity++
			return c.saveItems(ctx)
		}
	}
	item.Quantity = 1
	c.items = append(c.items, item)
	return c.saveItems(ctx)
}

// RemoveItem removes the line with the given id; no-op when absent.
func (c *Cart) RemoveItem(ctx context.Context, id string) error {
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return c.saveItems(ctx)
		}
	}
	return nil
}

// UpdateQuantity sets the quantity of a line. A quantity below 1 removes the
// line instead.
func (c *Cart) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	if quantity < 1 {
		return c.RemoveItem(ctx, id)
	}
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Quantity = quantity
			return c.saveItems(ctx)
		}
	}
	return nil
}

// ApplyDiscountCode validates and activates a discount code. It returns false
// without changing state when the code is unknown or the current subtotal is
// below the code's minimum. Applying a new code replaces any previous one.
func (c *Cart) ApplyDiscountCode(ctx context.Context, code string) (bool, error) {
	dc, ok := c.catalog.Lookup(code)
	if !ok {
		util.DiscountsAppliedTotal.WithLabelValues("unknown_code").Inc()
		return false, nil
	}

	if dc.MinAmount != nil && c.Subtotal().LessThan(*dc.MinAmount) {
		util.DiscountsAppliedTotal.WithLabelValues("below_minimum").Inc()
		return false, nil
	}

	c.discount = &dc
	if err := c.store.SaveDiscount(ctx, c.id, c.discount); err != nil {
		return false, err
	}
	util.DiscountsAppliedTotal.WithLabelValues("applied").Inc()
	return true, nil
}

// RemoveDiscountCode clears the active discount.
func (c *Cart) RemoveDiscountCode(ctx context.Context) error {
	c.discount = nil
	return c.store.SaveDiscount(ctx, c.id, nil)
}

// Clear empties the cart and clears the discount.
func (c *Cart) Clear(ctx context.Context) error {
	c.items = nil
	c.discount = nil
	if err := c.saveItems(ctx); err != nil {
		return err
	}
	return c.store.SaveDiscount(ctx, c.id, nil)
}

// TotalItems returns the sum of line quantities.
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.items {
		total += item.Quantity
	}
	return total
}

// Subtotal returns the sum of price x quantity across lines.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// Savings returns the difference between original and current prices.
func (c *Cart) Savings() decimal.Decimal {
	original := decimal.Zero
	for _, item := range c.items {
		original = original.Add(item.OriginalPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return original.Sub(c.Subtotal())
}

// DiscountAmount evaluates the active discount against the current subtotal.
func (c *Cart) DiscountAmount() decimal.Decimal {
	return ComputeDiscount(c.Subtotal(), c.discount)
}

// FinalTotal returns max(0, subtotal - discount).
func (c *Cart) FinalTotal() decimal.Decimal {
	total := c.Subtotal().Sub(c.DiscountAmount())
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (c *Cart) saveItems(ctx context.Context) error {
	return c.store.SaveItems(ctx, c.id, c.items)
}
