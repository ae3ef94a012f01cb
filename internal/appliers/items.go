package appliers

import (
	"github.com/crabpos/edge/internal/orderpb"
)

// mergeItems folds incoming items into the snapshot by instance_id: an
// existing instance has its quantity incremented and its pricing fields
// overwritten to the incoming (latest) values; a new instance is appended
// (spec §4.2 "ItemsAdded: merge by instance_id").
func mergeItems(s *orderpb.OrderSnapshot, incoming []orderpb.CartItem) {
	for _, item := range incoming {
		if existing := s.FindItem(item.InstanceID); existing != nil {
			existing.Quantity += item.Quantity
			existing.Name = item.Name
			existing.Price = item.Price
			existing.OriginalPrice = item.OriginalPrice
			existing.SelectedOptions = item.SelectedOptions
			existing.SelectedSpec = item.SelectedSpec
			existing.ManualDiscountPercent = item.ManualDiscountPercent
			existing.RuleDiscountAmount = item.RuleDiscountAmount
			existing.RuleSurchargeAmount = item.RuleSurchargeAmount
			existing.AppliedRules = item.AppliedRules
			existing.TaxRate = item.TaxRate
			existing.CategoryID = item.CategoryID
			existing.Tags = item.Tags
		} else {
			s.Items = append(s.Items, item)
		}
	}
}

func applyItemsAdded(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadItemsAdded
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	mergeItems(s, p.Items)
	return nil
}

// applyItemRemoved handles both whole-instance removal (quantity=nil) and
// partial decrement (quantity=n); hitting zero removes the line entirely
// and clears any recorded paid quantity for it (spec §4.2 "ItemRemoved").
// The removed copy is retained in RemovedItems so a later RestoreItem can
// recover its name and pricing (resolves spec §9's ItemRestored open
// question — see DESIGN.md).
func applyItemRemoved(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadItemRemoved
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}

	idx := -1
	for i := range s.Items {
		if s.Items[i].InstanceID == p.InstanceID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	item := s.Items[idx]
	removeAll := p.Quantity == nil
	qty := item.Quantity
	if !removeAll {
		qty = *p.Quantity
	}

	remaining := item.Quantity - qty
	if removeAll || remaining <= 0 {
		snapshotCopy := item
		if s.RemovedItems == nil {
			s.RemovedItems = map[string]orderpb.CartItem{}
		}
		s.RemovedItems[p.InstanceID] = snapshotCopy
		s.Items = append(s.Items[:idx], s.Items[idx+1:]...)
		if s.PaidItemQuantities != nil {
			delete(s.PaidItemQuantities, p.InstanceID)
		}
		return nil
	}

	s.Items[idx].Quantity = remaining
	return nil
}

// applyItemRestored re-inserts a previously removed instance verbatim. If
// an item with the same instance_id was re-added in the meantime, its
// quantity is incremented instead of duplicating the line.
func applyItemRestored(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadItemRestored
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}

	if existing := s.FindItem(p.InstanceID); existing != nil {
		existing.Quantity += p.Item.Quantity
	} else {
		s.Items = append(s.Items, p.Item)
	}
	if s.RemovedItems != nil {
		delete(s.RemovedItems, p.InstanceID)
	}
	return nil
}
