// Package pricing holds the one aggregation formula every consumer of proposal services shares:
// settlement, proposal responses and dashboards all derive totals through Aggregate.
package pricing

import (
	"github.com/shopspring/decimal"
)

// CommissionType describes how a service line's commission value is interpreted.
type CommissionType string

const (
	CommissionPercentage CommissionType = "percentage"
	CommissionFixed      CommissionType = "fixed"
)

// Valid reports whether t is a known commission type.
func (t CommissionType) Valid() bool {
	return t == CommissionPercentage || t == CommissionFixed
}

// CommissionBase selects which total a collaborator's percentage applies to.
type CommissionBase string

const (
	BaseProfit CommissionBase = "profit"
	BaseSale   CommissionBase = "sale"
)

// Valid reports whether b is a known commission base.
func (b CommissionBase) Valid() bool {
	return b == BaseProfit || b == BaseSale
}

var hundred = decimal.NewFromInt(100)

// Line is the pricing-relevant part of one proposal service.
type Line struct {
	Value           decimal.Decimal
	CommissionType  CommissionType
	CommissionValue decimal.Decimal
}

// Commission returns the agency commission earned on the line.
// Anything other than a percentage is treated as a fixed amount.
func (l Line) Commission() decimal.Decimal {
	if l.CommissionType == CommissionPercentage {
		return l.Value.Mul(l.CommissionValue).Div(hundred)
	}
	return l.CommissionValue
}

// Totals are derived from services; they are never trusted from a stored column during settlement.
type Totals struct {
	TotalValue      decimal.Decimal `json:"totalValue"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
}

// Aggregate sums values and commissions over lines.
func Aggregate(lines []Line) Totals {
	totals := Totals{TotalValue: decimal.Zero, TotalCommission: decimal.Zero}
	for _, l := range lines {
		totals.TotalValue = totals.TotalValue.Add(l.Value)
		totals.TotalCommission = totals.TotalCommission.Add(l.Commission())
	}
	return totals
}

// CollaboratorCommission picks the base by the collaborator's configuration and applies pct.
// It returns the base value used and the commission amount, rounded to cents.
func CollaboratorCommission(base CommissionBase, totals Totals, pct decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	baseValue := totals.TotalValue
	if base == BaseProfit {
		baseValue = totals.TotalCommission
	}
	amount := baseValue.Mul(pct).Div(hundred).Round(2)
	return baseValue, amount
}
