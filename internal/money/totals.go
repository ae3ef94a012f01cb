package money

import (
	"github.com/shopspring/decimal"

	"github.com/crabpos/edge/internal/orderpb"
)

// CalculateUnitPrice computes the final per-unit price of a CartItem:
//
//	base = original_price (falls back to price) + sum(option modifiers)
//	unit = base*(1 - manual%/100) - rule_discount + rule_surcharge
//
// clamped non-negative, rounded 2dp half-up (spec §4.6, ported from
// original_source/edge-server/src/orders/money.rs calculate_unit_price).
func CalculateUnitPrice(item *orderpb.CartItem) decimal.Decimal {
	if item.IsComped {
		return decimal.Zero
	}

	base := FromFloat(item.OriginalPrice)
	if item.OriginalPrice == 0 {
		base = FromFloat(item.Price)
	}

	optionsModifier := decimal.Zero
	for _, opt := range item.SelectedOptions {
		optionsModifier = optionsModifier.Add(FromFloat(opt.PriceModifier))
	}
	baseWithOptions := base.Add(optionsModifier)

	manualDiscount := decimal.Zero
	if item.ManualDiscountPercent != 0 {
		manualDiscount = baseWithOptions.Mul(FromFloat(item.ManualDiscountPercent)).Div(hundred)
	}

	ruleDiscount := FromFloat(item.RuleDiscountAmount)
	ruleSurcharge := FromFloat(item.RuleSurchargeAmount)

	unit := baseWithOptions.Sub(manualDiscount).Sub(ruleDiscount).Add(ruleSurcharge)
	if unit.IsNegative() {
		unit = decimal.Zero
	}
	return unit.Round(2)
}

// CalculateItemTotal is CalculateUnitPrice(item) * item.Quantity, 2dp half-up.
func CalculateItemTotal(item *orderpb.CartItem) decimal.Decimal {
	unit := CalculateUnitPrice(item)
	qty := decimal.NewFromInt(int64(item.Quantity))
	return unit.Mul(qty).Round(2)
}

// RecalculateTotals recomputes every monetary field on the snapshot from its
// items, payments, and order-level adjustments (spec §4.2, §4.6). It must be
// called by every applier after mutating the snapshot so that the
// state_checksum invariant holds on replay.
func RecalculateTotals(s *orderpb.OrderSnapshot) {
	oldTotal := FromFloat(s.Total)

	originalTotal := decimal.Zero
	subtotal := decimal.Zero
	totalTax := decimal.Zero

	for i := range s.Items {
		item := &s.Items[i]
		qty := decimal.NewFromInt(int64(item.Quantity))

		paidQty := 0
		if s.PaidItemQuantities != nil {
			paidQty = s.PaidItemQuantities[item.InstanceID]
		}
		item.UnpaidQuantity = item.Quantity - paidQty
		if item.UnpaidQuantity < 0 {
			item.UnpaidQuantity = 0
		}

		base := FromFloat(item.OriginalPrice)
		if item.OriginalPrice == 0 {
			base = FromFloat(item.Price)
		}
		optionsModifier := decimal.Zero
		for _, opt := range item.SelectedOptions {
			optionsModifier = optionsModifier.Add(FromFloat(opt.PriceModifier))
		}
		baseWithOptions := base.Add(optionsModifier)
		originalTotal = originalTotal.Add(baseWithOptions.Mul(qty))

		unit := CalculateUnitPrice(item)
		item.UnitPrice = ToFloat(unit)
		lineTotal := unit.Mul(qty).Round(2)
		item.LineTotal = ToFloat(lineTotal)

		// Spain IVA: prices are tax-inclusive. tax = gross * rate / (100+rate).
		taxRate := FromFloat(item.TaxRate)
		itemTax := decimal.Zero
		if taxRate.IsPositive() {
			itemTax = lineTotal.Mul(taxRate).Div(hundred.Add(taxRate))
		}
		item.Tax = ToFloat(itemTax)
		totalTax = totalTax.Add(itemTax)

		subtotal = subtotal.Add(lineTotal)
	}

	orderDiscount := FromFloat(s.OrderRuleDiscountAmount).
		Add(FromFloat(s.OrderManualDiscountFixed))
	if s.OrderManualDiscountPercent != 0 {
		orderDiscount = orderDiscount.Add(subtotal.Mul(FromFloat(s.OrderManualDiscountPercent)).Div(hundred))
	}
	orderSurcharge := FromFloat(s.OrderRuleSurchargeAmount).Add(FromFloat(s.OrderManualSurchargeFixed))

	total := subtotal.Sub(orderDiscount).Add(orderSurcharge)
	paid := FromFloat(s.PaidAmount)
	remaining := total.Sub(paid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	s.OriginalTotal = ToFloat(originalTotal)
	s.Subtotal = ToFloat(subtotal)
	s.Discount = ToFloat(orderDiscount)
	s.TotalSurcharge = ToFloat(orderSurcharge)
	s.Tax = ToFloat(totalTax)
	s.Total = ToFloat(total)
	s.RemainingAmount = ToFloat(remaining)

	if s.IsPrePayment && !Eq(s.Total, ToFloat(oldTotal)) {
		s.IsPrePayment = false
	}
}
