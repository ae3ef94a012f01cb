package appliers

import (
	"github.com/crabpos/edge/internal/orderpb"
)

// applyOrderDiscountApplied overwrites the order-level manual discount.
// Percent and fixed are mutually exclusive per event (spec §4.2); applying
// one clears the other so a stale value can't silently keep contributing.
func applyOrderDiscountApplied(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderDiscountApplied
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	switch p.PercentOrFixed {
	case "percent":
		s.OrderManualDiscountPercent = p.Value
		s.OrderManualDiscountFixed = 0
	case "fixed":
		s.OrderManualDiscountFixed = p.Value
		s.OrderManualDiscountPercent = 0
	}
	return nil
}

func applyOrderSurchargeApplied(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderSurchargeApplied
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.OrderManualSurchargeFixed = p.Value
	return nil
}
