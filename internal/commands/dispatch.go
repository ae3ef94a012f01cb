package commands

import (
	"fmt"

	"github.com/crabpos/edge/internal/orderpb"
)

// Handle routes cmd to its handler. snapshot is the order's current state
// (already loaded by the orders manager); for OpenTable it is a freshly
// allocated empty snapshot for the order_id the manager picked.
func Handle(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	switch cmd.Type {
	case orderpb.CmdOpenTable:
		return handleOpenTable(snapshot, cmd, ctx)
	case orderpb.CmdAddItems:
		return handleAddItems(snapshot, cmd, ctx)
	case orderpb.CmdRemoveItem:
		return handleRemoveItem(snapshot, cmd, ctx)
	case orderpb.CmdRestoreItem:
		return handleRestoreItem(snapshot, cmd, ctx)
	case orderpb.CmdApplyOrderDiscount:
		return handleApplyOrderDiscount(snapshot, cmd, ctx)
	case orderpb.CmdApplyOrderSurcharge:
		return handleApplyOrderSurcharge(snapshot, cmd, ctx)
	case orderpb.CmdAddPayment:
		return handleAddPayment(snapshot, cmd, ctx)
	case orderpb.CmdCancelPayment:
		return handleCancelPayment(snapshot, cmd, ctx)
	case orderpb.CmdCompleteOrder:
		return handleCompleteOrder(snapshot, cmd, ctx)
	case orderpb.CmdVoidOrder:
		return handleVoidOrder(snapshot, cmd, ctx)
	case orderpb.CmdMoveOrder:
		return handleMoveOrder(snapshot, cmd, ctx)
	case orderpb.CmdMergeOrders:
		return handleMergeOrders(snapshot, cmd, ctx)
	case orderpb.CmdSplitByItems:
		return handleSplitByItems(snapshot, cmd, ctx)
	case orderpb.CmdSplitByAmount:
		return handleSplitByAmount(snapshot, cmd, ctx)
	case orderpb.CmdStartAASplit:
		return handleStartAASplit(snapshot, cmd, ctx)
	case orderpb.CmdPayAASplit:
		return handlePayAASplit(snapshot, cmd, ctx)
	case orderpb.CmdCompItem:
		return handleCompItem(snapshot, cmd, ctx)
	case orderpb.CmdUncompItem:
		return handleUncompItem(snapshot, cmd, ctx)
	case orderpb.CmdUpdateOrderInfo:
		return handleUpdateOrderInfo(snapshot, cmd, ctx)
	default:
		return nil, fmt.Errorf("commands: unknown command type %q", cmd.Type)
	}
}
