package checkout

import (
	"fmt"
	"math"
)

// CartLine is a single requested product and quantity. Input only.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ProductQuote carries the authoritative price and discount for a product.
type ProductQuote struct {
	Price           float64
	DiscountPercent float64
}

// PricedLine is a cart line with authoritative pricing applied. Immutable
// once computed.
type PricedLine struct {
	ProductID                 string  `json:"product_id"`
	Quantity                  int     `json:"quantity"`
	UnitPrice                 float64 `json:"unit_price"`
	DiscountPercent           float64 `json:"discount_percent"`
	LineSubtotal              float64 `json:"line_subtotal"`
	LineSubtotalAfterDiscount float64 `json:"line_subtotal_after_discount"`
}

// PricedCart holds the priced lines and their aggregate totals.
type PricedCart struct {
	Lines               []PricedLine `json:"lines"`
	TotalBeforeDiscount float64      `json:"total_before_discount"`
	TotalAfterDiscount  float64      `json:"total_after_discount"`
}

// PriceCart computes per-line subtotals and running aggregates in one pass.
// Summation is commutative, so totals do not depend on line order. Every
// line's product must have a quote; a missing quote fails with
// ErrProductNotFound naming the offending id.
func PriceCart(lines []CartLine, quotes map[string]ProductQuote) (PricedCart, error) {
	cart := PricedCart{Lines: make([]PricedLine, 0, len(lines))}

	for _, line := range lines {
		quote, ok := quotes[line.ProductID]
		if !ok {
			return PricedCart{}, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
		}

		subtotal := float64(line.Quantity) * quote.Price
		afterDiscount := subtotal * (1 - quote.DiscountPercent/100)

		cart.Lines = append(cart.Lines, PricedLine{
			ProductID:                 line.ProductID,
			Quantity:                  line.Quantity,
			UnitPrice:                 quote.Price,
			DiscountPercent:           quote.DiscountPercent,
			LineSubtotal:              subtotal,
			LineSubtotalAfterDiscount: afterDiscount,
		})
		cart.TotalBeforeDiscount += subtotal
		cart.TotalAfterDiscount += afterDiscount
	}

	return cart, nil
}

// MinorUnits converts a currency amount to the gateway's integer minor-unit
// representation, rounding half up. Rounding happens at the final aggregate
// only, never per line, so per-line drift cannot accumulate.
func MinorUnits(amount float64) int64 {
	return int64(math.Floor(amount*100 + 0.5))
}
