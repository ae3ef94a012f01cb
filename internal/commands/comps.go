package commands

import (
	"github.com/google/uuid"

	"github.com/crabpos/edge/internal/orderpb"
)

// handleCompItem implements the CompItem policy (spec §4.3): a whole-line
// comp marks the source item comped in place; a partial comp splits off a
// new zero-priced instance and reduces the source's quantity.
func handleCompItem(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.CompItemPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed CompItem payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	item := snapshot.FindItem(p.InstanceID)
	if item == nil {
		return nil, errItemNotFound(cmd.OrderID, p.InstanceID)
	}
	if p.Quantity <= 0 || p.Quantity > item.Quantity {
		return nil, errInsufficientQuantity(cmd.OrderID, p.InstanceID)
	}
	if p.AuthorizerID == "" {
		return nil, errInvalidOperation(cmd.OrderID, "comp requires an authorizer")
	}

	wholeItem := p.Quantity == item.Quantity
	compInstanceID := p.InstanceID
	if !wholeItem {
		compInstanceID = p.InstanceID + "::comp::" + uuid.NewString()
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventItemComped, orderpb.PayloadItemComped{
		SourceInstanceID: p.InstanceID,
		CompInstanceID:   compInstanceID,
		Quantity:         p.Quantity,
		Reason:           p.Reason,
		AuthorizerID:     p.AuthorizerID,
		AuthorizerName:   p.AuthorizerName,
		WholeItem:        wholeItem,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleUncompItem(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.UncompItemPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed UncompItem payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	found := false
	for _, c := range snapshot.Comps {
		if c.CompInstanceID == p.CompInstanceID {
			found = true
			break
		}
	}
	if !found {
		return nil, errItemNotComped(cmd.OrderID, p.CompInstanceID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventItemUncomped, orderpb.PayloadItemUncomped{
		CompInstanceID: p.CompInstanceID,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}
