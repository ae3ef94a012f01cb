package commands

import (
	"sort"

	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/pricing"
	"github.com/crabpos/edge/pkg/idgen"
)

// priceAndIdentify runs the pricing engine over item and (re)computes its
// content-addressed instance_id, unless the caller already supplied one
// (spec §4.6 "On each AddItems command ... the engine [runs]"; spec §3
// "instance_id determinism").
func priceAndIdentify(item *orderpb.CartItem, rules []orderpb.PriceRule, zoneID string, isRetail bool) {
	pricing.PriceItem(item, rules, zoneID, isRetail)

	if item.InstanceID != "" {
		return
	}
	optionNames := make([]string, len(item.SelectedOptions))
	for i, opt := range item.SelectedOptions {
		optionNames[i] = opt.Name
	}
	ruleIDs := make([]string, len(item.AppliedRules))
	for i, r := range item.AppliedRules {
		ruleIDs[i] = r.RuleID
	}
	sort.Strings(ruleIDs)
	item.InstanceID = idgen.InstanceID(item.ProductID, item.SelectedSpec, optionNames, item.ManualDiscountPercent, ruleIDs)
}

func handleAddItems(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.AddItemsPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed AddItems payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	items := make([]orderpb.CartItem, len(p.Items))
	copy(items, p.Items)
	for i := range items {
		priceAndIdentify(&items[i], ctx.Rules, snapshot.ZoneID, snapshot.IsRetail)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{Items: items})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleRemoveItem(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.RemoveItemPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed RemoveItem payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	item := snapshot.FindItem(p.InstanceID)
	if item == nil {
		return nil, errItemNotFound(cmd.OrderID, p.InstanceID)
	}
	if p.Quantity != nil && *p.Quantity > item.Quantity {
		return nil, errInsufficientQuantity(cmd.OrderID, p.InstanceID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventItemRemoved, orderpb.PayloadItemRemoved{
		InstanceID: p.InstanceID,
		Quantity:   p.Quantity,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleRestoreItem(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.RestoreItemPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed RestoreItem payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	removed, found := snapshot.RemovedItems[p.InstanceID]
	if !found {
		return nil, errItemNotFound(cmd.OrderID, p.InstanceID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventItemRestored, orderpb.PayloadItemRestored{
		InstanceID: p.InstanceID,
		Item:       removed,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleApplyOrderDiscount(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.ApplyOrderDiscountPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed ApplyOrderDiscount payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if p.PercentOrFixed != "percent" && p.PercentOrFixed != "fixed" {
		return nil, errInvalidOperation(cmd.OrderID, "percent_or_fixed must be \"percent\" or \"fixed\"")
	}
	if p.Value < 0 {
		return nil, errInvalidAmount(cmd.OrderID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderDiscountApplied, orderpb.PayloadOrderDiscountApplied{
		PercentOrFixed:  p.PercentOrFixed,
		Value:           p.Value,
		PreviousPercent: snapshot.OrderManualDiscountPercent,
		PreviousFixed:   snapshot.OrderManualDiscountFixed,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleApplyOrderSurcharge(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.ApplyOrderSurchargePayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed ApplyOrderSurcharge payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if p.Value < 0 {
		return nil, errInvalidAmount(cmd.OrderID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventOrderSurchargeApplied, orderpb.PayloadOrderSurchargeApplied{
		Value:         p.Value,
		PreviousValue: snapshot.OrderManualSurchargeFixed,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}
