package commands

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crabpos/edge/internal/money"
	"github.com/crabpos/edge/internal/orderpb"
)

// Split mutual-exclusion rules (spec §3, §4.3 "authoritative"):
//   - item-split allowed if: no amount-split yet AND no AA active.
//   - amount-split allowed if: no AA active.
//   - AA allowed if: not already active AND no prior amount-split
//     (item-split co-exists with AA either direction).

func handleSplitByItems(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.SplitByItemsPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed SplitByItems payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if snapshot.HasAmountSplit {
		return nil, errInvalidOperation(cmd.OrderID, "an amount split is already in progress")
	}
	if snapshot.AATotalShares > 0 {
		return nil, errInvalidOperation(cmd.OrderID, "an AA split is already in progress")
	}

	total := decimal.Zero
	for _, instanceID := range p.Instances {
		item := snapshot.FindItem(instanceID)
		if item == nil {
			return nil, errItemNotFound(cmd.OrderID, instanceID)
		}
		total = total.Add(money.CalculateItemTotal(item))
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventItemSplit, orderpb.PayloadItemSplit{
		Instances: p.Instances,
		Method:    p.Method,
		PaymentID: uuid.NewString(),
		Amount:    money.ToFloat(total),
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleSplitByAmount(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.SplitByAmountPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed SplitByAmount payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if p.Amount <= 0 {
		return nil, errInvalidAmount(cmd.OrderID)
	}
	if snapshot.AATotalShares > 0 {
		return nil, errInvalidOperation(cmd.OrderID, "an AA split is already in progress")
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventAmountSplit, orderpb.PayloadAmountSplit{
		Amount:    p.Amount,
		Method:    p.Method,
		PaymentID: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleStartAASplit(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.StartAASplitPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed StartAASplit payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if p.TotalShares < 2 {
		return nil, errInvalidOperation(cmd.OrderID, "total_shares must be at least 2")
	}
	if snapshot.AATotalShares > 0 {
		return nil, errInvalidOperation(cmd.OrderID, "an AA split is already in progress")
	}
	if snapshot.HasAmountSplit {
		return nil, errInvalidOperation(cmd.OrderID, "an amount split has already occurred")
	}

	perShare := decimal.NewFromFloat(snapshot.Total).Div(decimal.NewFromInt(int64(p.TotalShares))).Round(2)

	startedEv, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventAaSplitStarted, orderpb.PayloadAaSplitStarted{
		TotalShares: p.TotalShares,
		PaidShares:  0,
		Method:      p.Method,
		ShareAmount: money.ToFloat(perShare),
	})
	if err != nil {
		return nil, err
	}
	events := []*orderpb.OrderEvent{startedEv}

	if p.PaidShares > 0 {
		paidEv, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventAaSplitPaid, orderpb.PayloadAaSplitPaid{
			Shares:      p.PaidShares,
			Method:      p.Method,
			PaymentID:   uuid.NewString(),
			ShareAmount: money.ToFloat(perShare.Mul(decimal.NewFromInt(int64(p.PaidShares)))),
		})
		if err != nil {
			return nil, err
		}
		events = append(events, paidEv)
	}
	return events, nil
}

func handlePayAASplit(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.PayAASplitPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed PayAASplit payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if snapshot.AATotalShares == 0 {
		return nil, errInvalidOperation(cmd.OrderID, "AA split has not been started")
	}
	remaining := snapshot.AATotalShares - snapshot.AAPaidShares
	if p.Shares <= 0 || p.Shares > remaining {
		return nil, errInsufficientQuantity(cmd.OrderID, "aa-split-shares")
	}

	perShare := decimal.NewFromFloat(snapshot.Total).Div(decimal.NewFromInt(int64(snapshot.AATotalShares))).Round(2)

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventAaSplitPaid, orderpb.PayloadAaSplitPaid{
		Shares:      p.Shares,
		Method:      p.Method,
		PaymentID:   uuid.NewString(),
		ShareAmount: money.ToFloat(perShare.Mul(decimal.NewFromInt(int64(p.Shares)))),
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}
