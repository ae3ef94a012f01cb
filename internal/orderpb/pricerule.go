package orderpb

import "time"

// RuleType distinguishes a discount from a surcharge (spec §3 PriceRule).
type RuleType string

const (
	RuleDiscount  RuleType = "Discount"
	RuleSurcharge RuleType = "Surcharge"
)

// ProductScope selects which items a rule can match.
type ProductScope string

const (
	ScopeGlobal   ProductScope = "Global"
	ScopeCategory ProductScope = "Category"
	ScopeTag      ProductScope = "Tag"
	ScopeProduct  ProductScope = "Product"
)

// AdjustmentType selects how AdjustmentValue is interpreted.
type AdjustmentType string

const (
	AdjustmentPercentage  AdjustmentType = "Percentage"
	AdjustmentFixedAmount AdjustmentType = "FixedAmount"
)

// PriceRule is a time/zone/scope-gated discount or surcharge (spec §3, §4.6).
type PriceRule struct {
	RuleID          string         `json:"rule_id"`
	Name            string         `json:"name"`
	RuleType        RuleType       `json:"rule_type"`
	ProductScope    ProductScope   `json:"product_scope"`
	TargetID        string         `json:"target_id,omitempty"`
	ZoneScope       string         `json:"zone_scope"`
	AdjustmentType  AdjustmentType `json:"adjustment_type"`
	AdjustmentValue float64        `json:"adjustment_value"`
	Priority        int            `json:"priority"`
	IsStackable     bool           `json:"is_stackable"`
	IsExclusive     bool           `json:"is_exclusive"`
	ValidFrom       *time.Time     `json:"valid_from,omitempty"`
	ValidUntil      *time.Time     `json:"valid_until,omitempty"`
	ActiveDays      []int          `json:"active_days,omitempty"` // 0=Sunday..6=Saturday
	ActiveStartTime string         `json:"active_start_time,omitempty"` // "HH:MM" local
	ActiveEndTime   string         `json:"active_end_time,omitempty"`
}
