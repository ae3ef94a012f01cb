package orderpb

import (
	"encoding/json"
	"fmt"
	"time"
)

// CommandType discriminates OrderCommand.Payload.
type CommandType string

const (
	CmdOpenTable           CommandType = "OpenTable"
	CmdAddItems            CommandType = "AddItems"
	CmdRemoveItem          CommandType = "RemoveItem"
	CmdRestoreItem         CommandType = "RestoreItem"
	CmdApplyOrderDiscount  CommandType = "ApplyOrderDiscount"
	CmdApplyOrderSurcharge CommandType = "ApplyOrderSurcharge"
	CmdAddPayment          CommandType = "AddPayment"
	CmdCancelPayment       CommandType = "CancelPayment"
	CmdCompleteOrder       CommandType = "CompleteOrder"
	CmdVoidOrder           CommandType = "VoidOrder"
	CmdMoveOrder           CommandType = "MoveOrder"
	CmdMergeOrders         CommandType = "MergeOrders"
	CmdSplitByItems        CommandType = "SplitByItems"
	CmdSplitByAmount       CommandType = "SplitByAmount"
	CmdStartAASplit        CommandType = "StartAASplit"
	CmdPayAASplit          CommandType = "PayAASplit"
	CmdCompItem            CommandType = "CompItem"
	CmdUncompItem          CommandType = "UncompItem"
	CmdUpdateOrderInfo     CommandType = "UpdateOrderInfo"
)

// OrderCommand carries imperative intent from a caller (spec §3).
type OrderCommand struct {
	CommandID    string      `json:"command_id"`
	OrderID      string      `json:"order_id,omitempty"`
	OperatorID   string      `json:"operator_id"`
	OperatorName string      `json:"operator_name"`
	Timestamp    time.Time   `json:"timestamp"`
	Type         CommandType `json:"type"`
	Payload      interface{} `json:"payload"`
}

// Command payload variants — one struct per CommandType, matching the
// handler contract table in spec §4.3.

type OpenTablePayload struct {
	TableID       string `json:"table_id"`
	ZoneID        string `json:"zone_id"`
	IsRetail      bool   `json:"is_retail"`
	GuestCount    int    `json:"guest_count"`
	ReceiptNumber string `json:"receipt_number"`
}

type AddItemsPayload struct {
	Items []CartItem `json:"items"`
}

type RemoveItemPayload struct {
	InstanceID string `json:"instance_id"`
	Quantity   *int   `json:"quantity,omitempty"`
}

type RestoreItemPayload struct {
	InstanceID string `json:"instance_id"`
}

type ApplyOrderDiscountPayload struct {
	PercentOrFixed string  `json:"percent_or_fixed"`
	Value          float64 `json:"value"`
}

type ApplyOrderSurchargePayload struct {
	Value float64 `json:"value"`
}

type AddPaymentPayload struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

type CancelPaymentPayload struct {
	PaymentID string `json:"payment_id"`
}

type CompleteOrderPayload struct {
	ReceiptNumber string `json:"receipt_number,omitempty"`
}

type VoidOrderPayload struct {
	Reason VoidReason `json:"reason"`
	Note   string     `json:"note,omitempty"`
}

type MoveOrderPayload struct {
	TargetTableID string `json:"target_table_id"`
}

type MergeOrdersPayload struct {
	SourceOrderID string `json:"source_order_id"`
	TargetOrderID string `json:"target_order_id"`
}

type SplitByItemsPayload struct {
	Instances []string `json:"instances"`
	Method    string   `json:"method"`
}

type SplitByAmountPayload struct {
	Amount float64 `json:"amount"`
	Method string  `json:"method"`
}

type StartAASplitPayload struct {
	TotalShares int    `json:"total_shares"`
	PaidShares  int    `json:"paid_shares"`
	Method      string `json:"method"`
}

type PayAASplitPayload struct {
	Shares int    `json:"shares"`
	Method string `json:"method"`
}

type CompItemPayload struct {
	InstanceID     string `json:"instance_id"`
	Quantity       int    `json:"quantity"`
	Reason         string `json:"reason"`
	AuthorizerID   string `json:"authorizer_id"`
	AuthorizerName string `json:"authorizer_name"`
}

type UncompItemPayload struct {
	CompInstanceID string `json:"comp_instance_id"`
}

type UpdateOrderInfoPayload struct {
	GuestCount *int    `json:"guest_count,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// orderCommandWire mirrors OrderCommand but keeps Payload raw so it can be
// decoded into the concrete struct its Type names.
type orderCommandWire struct {
	CommandID    string          `json:"command_id"`
	OrderID      string          `json:"order_id,omitempty"`
	OperatorID   string          `json:"operator_id"`
	OperatorName string          `json:"operator_name"`
	Timestamp    time.Time       `json:"timestamp"`
	Type         CommandType     `json:"type"`
	Payload      json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes Payload into the concrete struct CommandType names,
// the way CloudMessage's Type discriminator selects a variant on the wire
// (spec §6 "Wire: CloudMessage"/§3 command table). A command that arrives
// over the bus or cloud sync as plain JSON only type-asserts correctly
// against the handlers in internal/commands once it's gone through this.
func (c *OrderCommand) UnmarshalJSON(data []byte) error {
	var wire orderCommandWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*c = OrderCommand{
		CommandID:    wire.CommandID,
		OrderID:      wire.OrderID,
		OperatorID:   wire.OperatorID,
		OperatorName: wire.OperatorName,
		Timestamp:    wire.Timestamp,
		Type:         wire.Type,
	}

	if len(wire.Payload) == 0 || string(wire.Payload) == "null" {
		return nil
	}

	var target interface{}
	switch wire.Type {
	case CmdOpenTable:
		target = &OpenTablePayload{}
	case CmdAddItems:
		target = &AddItemsPayload{}
	case CmdRemoveItem:
		target = &RemoveItemPayload{}
	case CmdRestoreItem:
		target = &RestoreItemPayload{}
	case CmdApplyOrderDiscount:
		target = &ApplyOrderDiscountPayload{}
	case CmdApplyOrderSurcharge:
		target = &ApplyOrderSurchargePayload{}
	case CmdAddPayment:
		target = &AddPaymentPayload{}
	case CmdCancelPayment:
		target = &CancelPaymentPayload{}
	case CmdCompleteOrder:
		target = &CompleteOrderPayload{}
	case CmdVoidOrder:
		target = &VoidOrderPayload{}
	case CmdMoveOrder:
		target = &MoveOrderPayload{}
	case CmdMergeOrders:
		target = &MergeOrdersPayload{}
	case CmdSplitByItems:
		target = &SplitByItemsPayload{}
	case CmdSplitByAmount:
		target = &SplitByAmountPayload{}
	case CmdStartAASplit:
		target = &StartAASplitPayload{}
	case CmdPayAASplit:
		target = &PayAASplitPayload{}
	case CmdCompItem:
		target = &CompItemPayload{}
	case CmdUncompItem:
		target = &UncompItemPayload{}
	case CmdUpdateOrderInfo:
		target = &UpdateOrderInfoPayload{}
	default:
		return fmt.Errorf("orderpb: unknown command type %q", wire.Type)
	}

	if err := json.Unmarshal(wire.Payload, target); err != nil {
		return fmt.Errorf("orderpb: decode payload for %s: %w", wire.Type, err)
	}
	c.Payload = derefPayload(target)
	return nil
}

func derefPayload(target interface{}) interface{} {
	switch v := target.(type) {
	case *OpenTablePayload:
		return *v
	case *AddItemsPayload:
		return *v
	case *RemoveItemPayload:
		return *v
	case *RestoreItemPayload:
		return *v
	case *ApplyOrderDiscountPayload:
		return *v
	case *ApplyOrderSurchargePayload:
		return *v
	case *AddPaymentPayload:
		return *v
	case *CancelPaymentPayload:
		return *v
	case *CompleteOrderPayload:
		return *v
	case *VoidOrderPayload:
		return *v
	case *MoveOrderPayload:
		return *v
	case *MergeOrdersPayload:
		return *v
	case *SplitByItemsPayload:
		return *v
	case *SplitByAmountPayload:
		return *v
	case *StartAASplitPayload:
		return *v
	case *PayAASplitPayload:
		return *v
	case *CompItemPayload:
		return *v
	case *UncompItemPayload:
		return *v
	case *UpdateOrderInfoPayload:
		return *v
	default:
		return target
	}
}
