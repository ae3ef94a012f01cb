// Package archive is the cold-storage side of spec §4.5: gorm models
// mirroring the archive tables plus the background worker that drains
// storage's pending_archive queue into them. Modeled on
// internal/database/database.go's one-struct-per-table, Save/Get-method
// gorm style, with sqlite as the embedded-node default and postgres kept
// available for deployments that point the archive at a shared database.
package archive

import "time"

// ArchivedOrder is the summary row for one completed/voided/merged-out
// order (spec §4.5 step 2 "summary row in archived_orders").
type ArchivedOrder struct {
	OrderID        string `gorm:"column:order_id;primaryKey"`
	TableID        string
	ZoneID         string
	IsRetail       bool
	GuestCount     int
	ReceiptNumber  string
	Status         string
	VoidReason     string
	Subtotal       float64
	Discount       float64
	TotalSurcharge float64
	Tax            float64
	Total          float64
	PaidAmount     float64
	OperatorID     string
	OperatorName   string
	ArchivedAt     time.Time
	CreatedAt      time.Time
}

// OrderItem is one archived line, carrying tax_rate so later reporting can
// aggregate VAT by rate without re-parsing the detail blob (spec §4.5 step
// 2 "each line into order_items, with tax_rate for later aggregation").
type OrderItem struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	OrderID    string `gorm:"column:order_id;index"`
	InstanceID string
	ProductID  string
	Name       string
	Quantity   int
	UnitPrice  float64
	LineTotal  float64
	TaxRate    float64
	Tax        float64
	IsComped   bool
}

// OrderPayment is one non-cancelled payment (spec §4.5 step 2 "each
// non-cancelled payment into order_payments"); this table doubles as the
// independent payment projection the original writes for reconciliation.
type OrderPayment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	OrderID   string `gorm:"column:order_id;index"`
	PaymentID string
	Method    string
	Amount    float64
	CreatedAt time.Time
}

// OrderEvent is a flattened copy of the append-only event log (spec §4.5
// step 2 "each event into order_events").
type OrderEvent struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	OrderID      string `gorm:"column:order_id;index"`
	EventID      string
	Sequence     uint64
	EventType    string
	OperatorID   string
	OperatorName string
	Payload      string
	Timestamp    time.Time
}

// OrderDetail is a 30-day detail blob holding the full snapshot JSON for
// support/dispute lookups without reassembling it from OrderItem/OrderEvent
// rows (spec §4.5 step 2 "a 30-day detail JSON blob into order_details").
type OrderDetail struct {
	OrderID    string `gorm:"column:order_id;primaryKey"`
	DetailJSON string
	ExpiresAt  time.Time
}

// AuditLog is one administrative event row. The archive worker writes one
// for each archived terminal order (spec §4.5 step 4); nothing else in this
// module writes AuditLog rows.
type AuditLog struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	Action       string `gorm:"index"`
	ResourceType string
	ResourceID   string `gorm:"index"`
	OperatorID   string
	OperatorName string
	Details      string
	Target       string
	CreatedAt    time.Time
}

// Shift tracks the running expected-cash total for one operator's drawer,
// updated by every cash payment on archival (spec §4.5 step 3).
type Shift struct {
	OperatorID   string `gorm:"column:operator_id;primaryKey"`
	ExpectedCash float64
	OpenedAt     time.Time
	UpdatedAt    time.Time
}
