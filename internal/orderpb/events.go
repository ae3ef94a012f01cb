package orderpb

import (
	"encoding/json"
	"time"
)

// EventType discriminates OrderEvent.Payload the same way BusMessage and
// CloudMessage discriminate their payloads elsewhere in this module — an
// externally-tagged JSON variant whose tag is carried alongside the bytes
// rather than embedded in a single polymorphic struct.
type EventType string

const (
	EventOrderCreated          EventType = "OrderCreated"
	EventItemsAdded            EventType = "ItemsAdded"
	EventItemRemoved           EventType = "ItemRemoved"
	EventItemRestored          EventType = "ItemRestored"
	EventOrderDiscountApplied  EventType = "OrderDiscountApplied"
	EventOrderSurchargeApplied EventType = "OrderSurchargeApplied"
	EventPaymentAdded          EventType = "PaymentAdded"
	EventPaymentCancelled      EventType = "PaymentCancelled"
	EventOrderCompleted        EventType = "OrderCompleted"
	EventOrderVoided           EventType = "OrderVoided"
	EventOrderMoved            EventType = "OrderMoved"
	EventOrderMerged           EventType = "OrderMerged"
	EventOrderMergedOut        EventType = "OrderMergedOut"
	EventItemSplit             EventType = "ItemSplit"
	EventAmountSplit           EventType = "AmountSplit"
	EventAaSplitStarted        EventType = "AaSplitStarted"
	EventAaSplitPaid           EventType = "AaSplitPaid"
	EventItemComped            EventType = "ItemComped"
	EventItemUncomped          EventType = "ItemUncomped"
	EventOrderInfoUpdated      EventType = "OrderInfoUpdated"
)

// TerminalEventTypes are the event kinds that move an order out of the live
// store and into the archive pipeline (spec §4.5).
var TerminalEventTypes = map[EventType]bool{
	EventOrderCompleted: true,
	EventOrderVoided:    true,
	EventOrderMergedOut: true,
}

// OrderEvent is an immutable, append-only record (spec §3 Entities).
type OrderEvent struct {
	EventID         string          `json:"event_id"`
	Sequence        uint64          `json:"sequence"`
	OrderID         string          `json:"order_id"`
	Timestamp       time.Time       `json:"timestamp"`
	ClientTimestamp *time.Time      `json:"client_timestamp,omitempty"`
	OperatorID      string          `json:"operator_id"`
	OperatorName    string          `json:"operator_name"`
	CommandID       string          `json:"command_id"`
	EventType       EventType       `json:"event_type"`
	Payload         json.RawMessage `json:"payload"`
}

// Payload variants. Each is marshalled into OrderEvent.Payload by the
// handler that emits it and unmarshalled by the matching applier.

type PayloadOrderCreated struct {
	TableID       string `json:"table_id"`
	ZoneID        string `json:"zone_id"`
	IsRetail      bool   `json:"is_retail"`
	GuestCount    int    `json:"guest_count"`
	ReceiptNumber string `json:"receipt_number"`
}

type PayloadItemsAdded struct {
	Items []CartItem `json:"items"`
}

type PayloadItemRemoved struct {
	InstanceID string `json:"instance_id"`
	Quantity   *int   `json:"quantity,omitempty"`
}

type PayloadItemRestored struct {
	InstanceID string   `json:"instance_id"`
	Item       CartItem `json:"item"`
}

type PayloadOrderDiscountApplied struct {
	PercentOrFixed  string  `json:"percent_or_fixed"` // "percent" | "fixed"
	Value           float64 `json:"value"`
	PreviousPercent float64 `json:"previous_percent"`
	PreviousFixed   float64 `json:"previous_fixed"`
}

type PayloadOrderSurchargeApplied struct {
	Value         float64 `json:"value"`
	PreviousValue float64 `json:"previous_value"`
}

type PayloadPaymentAdded struct {
	PaymentID string  `json:"payment_id"`
	Method    string  `json:"method"`
	Amount    float64 `json:"amount"`
}

type PayloadPaymentCancelled struct {
	PaymentID string `json:"payment_id"`
}

type PayloadOrderCompleted struct {
	PaymentSummary []PaymentSummaryLine `json:"payment_summary"`
}

// VoidReason classifies how a void affects cash accounting (spec §4.5).
type VoidReason string

const (
	VoidCancelled    VoidReason = "Cancelled"
	VoidLossSettled  VoidReason = "LossSettled"
)

type PayloadOrderVoided struct {
	Reason VoidReason `json:"reason"`
	Note   string     `json:"note,omitempty"`
}

type PayloadOrderMoved struct {
	FromTableID string `json:"from_table_id"`
	ToTableID   string `json:"to_table_id"`
}

type PayloadOrderMerged struct {
	SourceOrderID string     `json:"source_order_id"`
	SourceItems   []CartItem `json:"source_items"`
}

type PayloadOrderMergedOut struct {
	TargetOrderID string `json:"target_order_id"`
}

type PayloadItemSplit struct {
	Instances []string `json:"instances"`
	Method    string   `json:"method"`
	PaymentID string   `json:"payment_id"`
	Amount    float64  `json:"amount"`
}

type PayloadAmountSplit struct {
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	PaymentID string  `json:"payment_id"`
}

type PayloadAaSplitStarted struct {
	TotalShares int      `json:"total_shares"`
	PaidShares  int      `json:"paid_shares"`
	Method      string   `json:"method"`
	PaymentID   string   `json:"payment_id,omitempty"`
	ShareAmount float64  `json:"share_amount"`
}

type PayloadAaSplitPaid struct {
	Shares      int     `json:"shares"`
	Method      string  `json:"method"`
	PaymentID   string  `json:"payment_id"`
	ShareAmount float64 `json:"share_amount"`
}

type PayloadItemComped struct {
	SourceInstanceID string  `json:"source_instance_id"`
	CompInstanceID   string  `json:"comp_instance_id"`
	Quantity         int     `json:"quantity"`
	Reason           string  `json:"reason"`
	AuthorizerID     string  `json:"authorizer_id"`
	AuthorizerName   string  `json:"authorizer_name"`
	WholeItem        bool    `json:"whole_item"`
}

type PayloadItemUncomped struct {
	CompInstanceID string `json:"comp_instance_id"`
}

type PayloadOrderInfoUpdated struct {
	GuestCount *int    `json:"guest_count,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// MarshalPayload is a small convenience used by handlers so they don't each
// repeat the json.Marshal/panic-on-bug dance.
func MarshalPayload(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		// payload types are handler-internal and always marshal cleanly;
		// a failure here is a programming error, not a runtime condition.
		panic("orderpb: payload marshal: " + err.Error())
	}
	return b
}
