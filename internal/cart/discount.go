package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Discount kinds
const (
	DiscountKindPercentage = "percentage"
	DiscountKindFixed      = "fixed"
)

// DiscountCode is a single rule from the discount catalog.
type DiscountCode struct {
	Code        string           `json:"code"`
	Kind        string           `json:"type"`
	Value       decimal.Decimal  `json:"value"`
	Description string           `json:"description"`
	MinAmount   *decimal.Decimal `json:"min_amount,omitempty"`
	MaxDiscount *decimal.Decimal `json:"max_discount,omitempty"`
}

// Catalog is an immutable lookup of discount codes. It is injected rather than
// global so tests can supply alternate catalogs.
type Catalog map[string]DiscountCode

// Lookup returns the rule for a code, case-insensitively.
func (c Catalog) Lookup(code string) (DiscountCode, bool) {
	dc, ok := c[strings.ToUpper(code)]
	return dc, ok
}

// ComputeDiscount evaluates a discount rule against a subtotal. The result is
// clamped so it never exceeds the subtotal. It is re-evaluated on every read
// and never cached, so changing cart contents cannot leave a stale amount.
func ComputeDiscount(subtotal decimal.Decimal, dc *DiscountCode) decimal.Decimal {
	if dc == nil {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch dc.Kind {
	case DiscountKindPercentage:
		discount = subtotal.Mul(dc.Value).Div(decimal.NewFromInt(100))
		if dc.MaxDiscount != nil && discount.GreaterThan(*dc.MaxDiscount) {
			discount = *dc.MaxDiscount
		}
	case DiscountKindFixed:
		discount = dc.Value
	}

	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return discount
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

// DefaultCatalog returns the storefront's discount code table.
func DefaultCatalog() Catalog {
	return Catalog{
		"WELCOME10": {
			Code:        "WELCOME10",
			Kind:        DiscountKindPercentage,
			Value:       dec("10"),
			Description: "10% off your first order",
			MinAmount:   decPtr("100"),
		},
		"SAVE50": {
			Code:        "SAVE50",
			Kind:        DiscountKindFixed,
			Value:       dec("50"),
			Description: "$50 off orders over $500",
			MinAmount:   decPtr("500"),
		},
		"STUDENT25": {
			Code:        "STUDENT25",
			Kind:        DiscountKindPercentage,
			Value:       dec("25"),
			Description: "25% off for students",
			MinAmount:   decPtr("200"),
			MaxDiscount: decPtr("300"),
		},
		"RESEARCH20": {
			Code:        "RESEARCH20",
			Kind:        DiscountKindPercentage,
			Value:       dec("20"),
			Description: "20% off for research institutions",
			MinAmount:   decPtr("300"),
		},
		"FREE4YOU": {
			Code:        "FREE4YOU",
			Kind:        DiscountKindPercentage,
			Value:       dec("100"),
			Description: "100% off - Free product!",
			MinAmount:   decPtr("0"),
		},
	}
}
