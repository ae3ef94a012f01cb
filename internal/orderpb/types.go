// Package orderpb holds the algebraic command/event/snapshot types shared by
// the appliers, command handlers, storage layer, and archive worker.
//
// Event payloads are tagged variants encoded as JSON with a discriminator
// matching EventType, the same externally-tagged shape the wire protocols
// (BusMessage, CloudMessage) use elsewhere in this module.
package orderpb

import (
	"time"
)

// OrderStatus is the lifecycle state of an order (spec §3 Entities).
type OrderStatus string

const (
	StatusActive    OrderStatus = "Active"
	StatusCompleted OrderStatus = "Completed"
	StatusVoid      OrderStatus = "Void"
	StatusMoved     OrderStatus = "Moved"
	StatusMerged    OrderStatus = "Merged"
)

// SelectedOption is a chosen product modifier (e.g. "extra shot").
type SelectedOption struct {
	Name           string  `json:"name"`
	PriceModifier  float64 `json:"price_modifier"`
}

// AppliedRule is the audit trail entry left on a CartItem by the pricing
// engine (spec §4.6 step 6).
type AppliedRule struct {
	RuleID      string  `json:"rule_id"`
	Name        string  `json:"name"`
	Amount      float64 `json:"amount"`
	Stackable   bool    `json:"stackable"`
	Exclusive   bool    `json:"exclusive"`
}

// CompRecord links a comped instance back to its source (spec §3 Comp
// reversibility invariant).
type CompRecord struct {
	CompInstanceID   string  `json:"comp_instance_id"`
	SourceInstanceID string  `json:"source_instance_id"`
	Quantity         int     `json:"quantity"`
	OriginalPrice    float64 `json:"original_price"`
	Reason           string  `json:"reason"`
	AuthorizerID     string  `json:"authorizer_id"`
	AuthorizerName   string  `json:"authorizer_name"`
	CreatedAt        time.Time `json:"created_at"`
}

// CartItem is a line inside an order (spec §3 Entities: CartItem).
type CartItem struct {
	ProductID             string           `json:"product_id"`
	InstanceID            string           `json:"instance_id"`
	Name                  string           `json:"name"`
	Price                 float64          `json:"price"`
	OriginalPrice         float64          `json:"original_price"`
	Quantity              int              `json:"quantity"`
	UnpaidQuantity        int              `json:"unpaid_quantity"`
	SelectedOptions       []SelectedOption `json:"selected_options,omitempty"`
	SelectedSpec          string           `json:"selected_spec,omitempty"`
	ManualDiscountPercent float64          `json:"manual_discount_percent,omitempty"`
	RuleDiscountAmount    float64          `json:"rule_discount_amount,omitempty"`
	RuleSurchargeAmount   float64          `json:"rule_surcharge_amount,omitempty"`
	AppliedRules          []AppliedRule    `json:"applied_rules,omitempty"`
	IsComped              bool             `json:"is_comped"`
	Tax                   float64          `json:"tax"`
	TaxRate               float64          `json:"tax_rate"`
	Notes                 string           `json:"notes,omitempty"`
	UnitPrice             float64          `json:"unit_price"`
	LineTotal             float64          `json:"line_total"`
	CategoryID            string           `json:"category_id,omitempty"`
	Tags                  []string         `json:"tags,omitempty"`
}

// PaymentRecord is one payment applied to an order.
type PaymentRecord struct {
	ID         string    `json:"id"`
	Method     string    `json:"method"`
	Amount     float64   `json:"amount"`
	Cancelled  bool      `json:"cancelled"`
	CreatedAt  time.Time `json:"created_at"`
}

// PaymentSummaryLine aggregates payments by method, emitted on OrderCompleted.
type PaymentSummaryLine struct {
	Method string  `json:"method"`
	Amount float64 `json:"amount"`
}

// OrderSnapshot is the materialized current state of an order (spec §3).
type OrderSnapshot struct {
	OrderID       string      `json:"order_id"`
	Status        OrderStatus `json:"status"`
	Items         []CartItem  `json:"items"`
	RemovedItems  map[string]CartItem `json:"removed_items,omitempty"`
	Payments      []PaymentRecord `json:"payments"`
	Comps         []CompRecord    `json:"comps,omitempty"`
	TableID       string      `json:"table_id"`
	ZoneID        string      `json:"zone_id"`
	IsRetail      bool        `json:"is_retail"`
	GuestCount    int         `json:"guest_count"`
	ReceiptNumber string      `json:"receipt_number"`
	Notes         string      `json:"notes,omitempty"`
	VoidReason    VoidReason  `json:"void_reason,omitempty"`

	OriginalTotal    float64 `json:"original_total"`
	Subtotal         float64 `json:"subtotal"`
	Discount         float64 `json:"discount"`
	TotalSurcharge   float64 `json:"total_surcharge"`
	Tax              float64 `json:"tax"`
	Total            float64 `json:"total"`
	PaidAmount       float64 `json:"paid_amount"`
	RemainingAmount  float64 `json:"remaining_amount"`

	OrderManualDiscountPercent float64 `json:"order_manual_discount_percent,omitempty"`
	OrderManualDiscountFixed   float64 `json:"order_manual_discount_fixed,omitempty"`
	OrderRuleDiscountAmount    float64 `json:"order_rule_discount_amount,omitempty"`
	OrderManualSurchargeFixed  float64 `json:"order_manual_surcharge_fixed,omitempty"`
	OrderRuleSurchargeAmount   float64 `json:"order_rule_surcharge_amount,omitempty"`
	IsPrePayment               bool    `json:"is_pre_payment"`

	PaidItemQuantities map[string]int `json:"paid_item_quantities,omitempty"`

	AATotalShares int  `json:"aa_total_shares,omitempty"`
	AAPaidShares  int  `json:"aa_paid_shares,omitempty"`
	HasAmountSplit bool `json:"has_amount_split"`

	MovedFromTableID string `json:"moved_from_table_id,omitempty"`
	MergedFromOrderIDs []string `json:"merged_from_order_ids,omitempty"`

	LastSequence  uint64    `json:"last_sequence"`
	UpdatedAt     time.Time `json:"updated_at"`
	StateChecksum string    `json:"state_checksum"`
}

// NewOrderSnapshot creates an empty Active snapshot for order_id.
func NewOrderSnapshot(orderID string) *OrderSnapshot {
	return &OrderSnapshot{
		OrderID:            orderID,
		Status:             StatusActive,
		Items:              []CartItem{},
		Payments:           []PaymentRecord{},
		PaidItemQuantities: map[string]int{},
		RemovedItems:       map[string]CartItem{},
		UpdatedAt:          time.Now(),
	}
}

// FindItem returns a pointer to the item with the given instance id, or nil.
func (s *OrderSnapshot) FindItem(instanceID string) *CartItem {
	for i := range s.Items {
		if s.Items[i].InstanceID == instanceID {
			return &s.Items[i]
		}
	}
	return nil
}

// FindPayment returns a pointer to the payment with the given id, or nil.
func (s *OrderSnapshot) FindPayment(paymentID string) *PaymentRecord {
	for i := range s.Payments {
		if s.Payments[i].ID == paymentID {
			return &s.Payments[i]
		}
	}
	return nil
}
