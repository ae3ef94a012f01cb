package appliers

import (
	"github.com/crabpos/edge/internal/orderpb"
)

// applyItemComped realizes the CompItem handler's decision (spec §4.3
// "CompItem policy"). WholeItem means the entire source line is comped in
// place; otherwise the applier reduces the source's quantity by the comped
// quantity (never below zero) and appends a zero-priced copy of the source
// under the event's comp instance id, plus its CompRecord. The handler
// only validates the request and emits the event.
func applyItemComped(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadItemComped
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}

	source := s.FindItem(p.SourceInstanceID)
	if source == nil {
		return nil
	}

	if p.WholeItem {
		originalPrice := source.Price
		source.IsComped = true
		source.Price = 0
		s.Comps = append(s.Comps, orderpb.CompRecord{
			CompInstanceID:   p.SourceInstanceID,
			SourceInstanceID: p.SourceInstanceID,
			Quantity:         p.Quantity,
			OriginalPrice:    originalPrice,
			Reason:           p.Reason,
			AuthorizerID:     p.AuthorizerID,
			AuthorizerName:   p.AuthorizerName,
			CreatedAt:        ev.Timestamp,
		})
		return nil
	}

	originalPrice := source.Price
	source.Quantity -= p.Quantity
	if source.Quantity < 0 {
		source.Quantity = 0
	}

	compItem := *source
	compItem.InstanceID = p.CompInstanceID
	compItem.Quantity = p.Quantity
	compItem.IsComped = true
	compItem.OriginalPrice = originalPrice
	compItem.Price = 0
	compItem.UnitPrice = 0
	compItem.LineTotal = 0
	s.Items = append(s.Items, compItem)

	s.Comps = append(s.Comps, orderpb.CompRecord{
		CompInstanceID:   p.CompInstanceID,
		SourceInstanceID: p.SourceInstanceID,
		Quantity:         p.Quantity,
		OriginalPrice:    originalPrice,
		Reason:           p.Reason,
		AuthorizerID:     p.AuthorizerID,
		AuthorizerName:   p.AuthorizerName,
		CreatedAt:        ev.Timestamp,
	})
	return nil
}

// applyItemUncomped reverses a comp: whole-item comps restore the source's
// price in place; split comps remove the comp line and merge its quantity
// back into the source if it still exists (spec §4.2 "ItemUncomped").
func applyItemUncomped(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadItemUncomped
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}

	recordIdx := -1
	var record orderpb.CompRecord
	for i, c := range s.Comps {
		if c.CompInstanceID == p.CompInstanceID {
			recordIdx = i
			record = c
			break
		}
	}
	if recordIdx == -1 {
		return nil
	}

	if record.CompInstanceID == record.SourceInstanceID {
		if item := s.FindItem(record.SourceInstanceID); item != nil {
			item.IsComped = false
			item.Price = record.OriginalPrice
		}
	} else {
		compIdx := -1
		for i := range s.Items {
			if s.Items[i].InstanceID == p.CompInstanceID {
				compIdx = i
				break
			}
		}
		if compIdx != -1 {
			s.Items = append(s.Items[:compIdx], s.Items[compIdx+1:]...)
		}
		if source := s.FindItem(record.SourceInstanceID); source != nil {
			source.Quantity += record.Quantity
		}
	}

	s.Comps = append(s.Comps[:recordIdx], s.Comps[recordIdx+1:]...)
	return nil
}
