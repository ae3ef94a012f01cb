package appliers

import (
	"github.com/crabpos/edge/internal/orderpb"
)

func applyOrderCreated(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderCreated
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.TableID = p.TableID
	s.ZoneID = p.ZoneID
	s.IsRetail = p.IsRetail
	s.GuestCount = p.GuestCount
	s.ReceiptNumber = p.ReceiptNumber
	s.Status = orderpb.StatusActive
	return nil
}

func applyOrderCompleted(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	s.Status = orderpb.StatusCompleted
	return nil
}

func applyOrderVoided(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderVoided
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.Status = orderpb.StatusVoid
	s.VoidReason = p.Reason
	return nil
}

func applyOrderMoved(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderMoved
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.MovedFromTableID = p.FromTableID
	s.TableID = p.ToTableID
	return nil
}

// applyOrderMerged runs on the TARGET order: the source's items are folded
// in by instance_id, the same merge rule ItemsAdded uses (spec §4.2
// "OrderMerged (target): append source items").
func applyOrderMerged(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderMerged
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	mergeItems(s, p.SourceItems)
	s.MergedFromOrderIDs = append(s.MergedFromOrderIDs, p.SourceOrderID)
	return nil
}

// applyOrderMergedOut runs on the SOURCE order: it becomes terminal with
// status Merged and holds no further items of its own.
func applyOrderMergedOut(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	s.Status = orderpb.StatusMerged
	return nil
}

func applyOrderInfoUpdated(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadOrderInfoUpdated
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	if p.GuestCount != nil {
		s.GuestCount = *p.GuestCount
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	return nil
}
