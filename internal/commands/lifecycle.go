package commands

import (
	"github.com/crabpos/edge/internal/orderpb"
)

func handleOpenTable(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.OpenTablePayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed OpenTable payload")
	}

	if existing, found := ctx.Tx.FindActiveOrderForTable(p.TableID); found && existing != cmd.OrderID {
		return nil, errTableOccupied(cmd.OrderID, p.TableID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderCreated, orderpb.PayloadOrderCreated{
		TableID:       p.TableID,
		ZoneID:        p.ZoneID,
		IsRetail:      p.IsRetail,
		GuestCount:    p.GuestCount,
		ReceiptNumber: p.ReceiptNumber,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleVoidOrder(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.VoidOrderPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed VoidOrder payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderVoided, orderpb.PayloadOrderVoided{
		Reason: p.Reason,
		Note:   p.Note,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleMoveOrder(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.MoveOrderPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed MoveOrder payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	if p.TargetTableID != snapshot.TableID {
		if existing, found := ctx.Tx.FindActiveOrderForTable(p.TargetTableID); found && existing != cmd.OrderID {
			return nil, errTableOccupied(cmd.OrderID, p.TargetTableID)
		}
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderMoved, orderpb.PayloadOrderMoved{
		FromTableID: snapshot.TableID,
		ToTableID:   p.TargetTableID,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

// handleMergeOrders emits two events targeting two different order_ids: the
// orchestrator is responsible for recognizing a multi-order result and
// applying/persisting each affected order within the same transaction
// (internal/ordersmgr's ExecuteCommand loads, applies and stores the
// snapshot of any second order_id it meets in the event list).
func handleMergeOrders(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.MergeOrdersPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed MergeOrders payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	source, err := ctx.Tx.GetSnapshot(p.SourceOrderID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(source, p.SourceOrderID); err != nil {
		return nil, err
	}

	mergedEv, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderMerged, orderpb.PayloadOrderMerged{
		SourceOrderID: p.SourceOrderID,
		SourceItems:   source.Items,
	})
	if err != nil {
		return nil, err
	}
	mergedOutEv, err := ctx.newEvent(p.SourceOrderID, cmd, orderpb.EventOrderMergedOut, orderpb.PayloadOrderMergedOut{
		TargetOrderID: cmd.OrderID,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{mergedEv, mergedOutEv}, nil
}

func handleCompleteOrder(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	if !moneyPaymentSufficient(snapshot) {
		return nil, errInvalidOperation(cmd.OrderID, "payment insufficient")
	}

	summary := paymentSummaryByMethod(snapshot)

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderCompleted, orderpb.PayloadOrderCompleted{
		PaymentSummary: summary,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}
