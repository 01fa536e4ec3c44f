package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/printcore/prism/internal/domain"
)

// ErrInvalidInput marks a pricing request the calculator refuses to serve:
// negative base price, quantity below one, or a negative GST rate. These
// are rejected, never silently corrected.
var ErrInvalidInput = errors.New("invalid pricing input")

var (
	decimalZero    = decimal.Zero
	decimalHundred = decimal.NewFromInt(100)
	decimalOne     = decimal.NewFromInt(1)
)

// Calculator walks an ordered adjustment sequence and produces a full
// price breakdown. All arithmetic runs on decimals; only the final total
// is rounded (half-up, two places), and the unit price is derived from the
// rounded total so unit x quantity reconciles within one cent.
type Calculator struct{}

// NewCalculator creates a price calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// CalcInput holds one calculation's inputs.
type CalcInput struct {
	BasePrice   float64
	Quantity    int
	GSTPercent  float64
	Adjustments []*domain.PricingModifier
}

// Apply runs the adjustment chain. The chain is all-or-nothing: a rejected
// input fails before any adjustment is applied.
func (c *Calculator) Apply(in CalcInput) (*domain.PricingBreakdown, error) {
	if in.BasePrice < 0 {
		return nil, fmt.Errorf("%w: base price must be non-negative, got %v", ErrInvalidInput, in.BasePrice)
	}
	if in.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1, got %d", ErrInvalidInput, in.Quantity)
	}
	if in.GSTPercent < 0 {
		return nil, fmt.Errorf("%w: gst percent must be non-negative, got %v", ErrInvalidInput, in.GSTPercent)
	}

	qty := decimal.NewFromInt(int64(in.Quantity))
	unit := decimal.NewFromFloat(in.BasePrice)
	total := unit.Mul(qty)

	bd := &domain.PricingBreakdown{
		BaseUnitPrice: unit.InexactFloat64(),
		BaseTotal:     total.InexactFloat64(),
	}

	for _, adj := range in.Adjustments {
		switch adj.AppliesOn {
		case domain.AppliesOnTotal:
			total = applyAdjustment(total, adj)
			unit = total.Div(qty)
		default:
			// UNIT is the default base for adjustments.
			unit = applyAdjustment(unit, adj)
			total = unit.Mul(qty)
		}

		bd.Steps = append(bd.Steps, domain.BreakdownStep{
			ModifierID: adj.ID,
			Name:       adj.Name,
			Scope:      adj.AppliesTo,
			Type:       adj.Type,
			Value:      adj.Value,
			AppliesOn:  adj.AppliesOn,
			UnitPrice:  unit.InexactFloat64(),
			Total:      total.InexactFloat64(),
		})
	}

	// Round only the final total; intermediate rounding would compound
	// error across long chains.
	subtotal := total.Round(2)
	gst := subtotal.Mul(decimal.NewFromFloat(in.GSTPercent)).Div(decimalHundred).Round(2)
	finalTotal := subtotal.Add(gst)
	finalUnit := finalTotal.Div(qty)

	bd.Subtotal = subtotal.InexactFloat64()
	bd.GSTPercent = in.GSTPercent
	bd.GSTAmount = gst.InexactFloat64()
	bd.Total = finalTotal.InexactFloat64()
	bd.UnitPrice = finalUnit.InexactFloat64()

	return bd, nil
}

// applyAdjustment applies one modifier to a running value, clamped so
// decreases never drive the price below zero.
func applyAdjustment(v decimal.Decimal, adj *domain.PricingModifier) decimal.Decimal {
	value := decimal.NewFromFloat(adj.Value)

	switch adj.Type {
	case domain.PercentInc:
		v = v.Mul(decimalOne.Add(value.Div(decimalHundred)))
	case domain.PercentDec:
		v = v.Mul(decimalOne.Sub(value.Div(decimalHundred)))
	case domain.FixedInc:
		v = v.Add(value)
	case domain.FixedDec:
		v = v.Sub(value)
	}

	if v.IsNegative() {
		return decimalZero
	}
	return v
}
