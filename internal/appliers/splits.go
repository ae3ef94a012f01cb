package appliers

import (
	"github.com/crabpos/edge/internal/orderpb"
)

// applyItemSplit settles a subset of instances as paid-in-full via a
// dedicated payment, without removing the items from the order — the bill
// stays whole, but those lines no longer count toward remaining_amount
// (spec §4.2's paid_item_quantities mechanism, reused here for
// split-by-items the same way a partial payment would be).
func applyItemSplit(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadItemSplit
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	if s.PaidItemQuantities == nil {
		s.PaidItemQuantities = map[string]int{}
	}
	for _, instanceID := range p.Instances {
		if item := s.FindItem(instanceID); item != nil {
			s.PaidItemQuantities[instanceID] += item.Quantity
		}
	}
	s.Payments = append(s.Payments, orderpb.PaymentRecord{
		ID:        p.PaymentID,
		Method:    p.Method,
		Amount:    p.Amount,
		CreatedAt: ev.Timestamp,
	})
	recomputePaidAmount(s)
	return nil
}

// applyAmountSplit records a fixed-amount payment toward the order and
// flags HasAmountSplit so the command handlers can enforce the
// item-split/amount-split mutual exclusion (spec §3 "Split mutual
// exclusion").
func applyAmountSplit(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadAmountSplit
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.Payments = append(s.Payments, orderpb.PaymentRecord{
		ID:        p.PaymentID,
		Method:    p.Method,
		Amount:    p.Amount,
		CreatedAt: ev.Timestamp,
	})
	s.HasAmountSplit = true
	recomputePaidAmount(s)
	return nil
}

// applyAaSplitStarted initializes "going Dutch" progress. The initial
// payment for any shares paid up front arrives as a separate AaSplitPaid
// event, per the handler's two-event emission (spec §4.3 StartAASplit).
func applyAaSplitStarted(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadAaSplitStarted
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.AATotalShares = p.TotalShares
	s.AAPaidShares = 0
	return nil
}

func applyAaSplitPaid(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadAaSplitPaid
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.AAPaidShares += p.Shares
	s.Payments = append(s.Payments, orderpb.PaymentRecord{
		ID:        p.PaymentID,
		Method:    p.Method,
		Amount:    p.ShareAmount,
		CreatedAt: ev.Timestamp,
	})
	recomputePaidAmount(s)
	return nil
}
