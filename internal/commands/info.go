package commands

import (
	"github.com/crabpos/edge/internal/orderpb"
)

func handleUpdateOrderInfo(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.UpdateOrderInfoPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed UpdateOrderInfo payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if p.GuestCount == nil && p.Notes == nil {
		return nil, &OrderError{Code: CodeNoFieldsToUpdate, OrderID: cmd.OrderID, Message: "at least one field must be supplied"}
	}
	if p.GuestCount != nil && *p.GuestCount < 1 {
		return nil, &OrderError{Code: CodeInvalidGuestCount, OrderID: cmd.OrderID, Message: "guest_count must be at least 1"}
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderInfoUpdated, orderpb.PayloadOrderInfoUpdated{
		GuestCount: p.GuestCount,
		Notes:      p.Notes,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}
