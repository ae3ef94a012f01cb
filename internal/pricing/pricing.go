// Package pricing implements the rule filtering and discount/surcharge
// resolution described in spec §4.6: time/zone/scope-gated rules, stacking
// vs. exclusive resolution, and the per-item adjustment amounts that feed
// internal/money's totals recompute.
package pricing

import (
	"sort"
	"time"

	"github.com/crabpos/edge/internal/orderpb"
)

// IsTimeValid reports whether rule is in effect at instant now, using the
// system local zone (with DST) for day-of-week/time-of-day bounds and UTC
// for the absolute valid_from/valid_until bounds (spec §9 "Time-of-day rule
// filtering").
func IsTimeValid(rule orderpb.PriceRule, now time.Time) bool {
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return false
	}
	if rule.ValidUntil != nil && now.After(*rule.ValidUntil) {
		return false
	}

	local := now.Local()

	if len(rule.ActiveDays) > 0 {
		today := int(local.Weekday())
		found := false
		for _, d := range rule.ActiveDays {
			if d == today {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if rule.ActiveStartTime != "" && rule.ActiveEndTime != "" {
		nowClock := local.Format("15:04")
		if nowClock < rule.ActiveStartTime || nowClock > rule.ActiveEndTime {
			return false
		}
	}

	return true
}

// FilterTimeValid keeps only rules in effect at now (orchestrator step 5 —
// the orders manager runs this once per command before invoking a handler).
func FilterTimeValid(rules []orderpb.PriceRule, now time.Time) []orderpb.PriceRule {
	out := make([]orderpb.PriceRule, 0, len(rules))
	for _, r := range rules {
		if IsTimeValid(r, now) {
			out = append(out, r)
		}
	}
	return out
}

// matchesScope reports whether rule's product_scope selects item.
func matchesScope(rule orderpb.PriceRule, item *orderpb.CartItem) bool {
	switch rule.ProductScope {
	case orderpb.ScopeGlobal:
		return true
	case orderpb.ScopeProduct:
		return rule.TargetID == item.ProductID
	case orderpb.ScopeCategory:
		return rule.TargetID == item.CategoryID
	case orderpb.ScopeTag:
		for _, tag := range item.Tags {
			if tag == rule.TargetID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// matchesZone reports whether rule's zone_scope applies to an order in the
// given zone with the given retail flag (spec §4.6 step 3).
func matchesZone(rule orderpb.PriceRule, zoneID string, isRetail bool) bool {
	switch rule.ZoneScope {
	case "zone:all":
		return true
	case "zone:retail":
		return isRetail
	default:
		return rule.ZoneScope == zoneID
	}
}

// MatchingRules returns the rules (already time-filtered) applicable to
// item in the context of zoneID/isRetail, sorted by priority descending.
func MatchingRules(rules []orderpb.PriceRule, item *orderpb.CartItem, zoneID string, isRetail bool) []orderpb.PriceRule {
	var matched []orderpb.PriceRule
	for _, r := range rules {
		if matchesScope(r, item) && matchesZone(r, zoneID, isRetail) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Priority > matched[j].Priority
	})
	return matched
}

// Resolve picks which of the matched (priority-sorted) rules actually apply
// to an item: an exclusive rule short-circuits, otherwise every stackable
// rule applies plus at most one non-stackable non-exclusive rule (the
// highest priority one) (spec §4.6 step 4).
func Resolve(matched []orderpb.PriceRule) []orderpb.PriceRule {
	for _, r := range matched {
		if r.IsExclusive {
			return []orderpb.PriceRule{r}
		}
	}

	var applied []orderpb.PriceRule
	tookNonStackable := false
	for _, r := range matched {
		if r.IsStackable {
			applied = append(applied, r)
			continue
		}
		if !tookNonStackable {
			applied = append(applied, r)
			tookNonStackable = true
		}
	}
	return applied
}

// Apply computes the resolved rules' effect on base (the item's pre-rule
// unit base: original_price + option modifiers) and returns the
// accumulated discount amount, surcharge amount, and the audit trail
// entries to store on the item (spec §4.6 steps 5-6). Percentage
// adjustments are relative to base; fixed adjustments are clamped so a
// discount never exceeds the remaining base.
func Apply(base float64, applied []orderpb.PriceRule) (discount float64, surcharge float64, trail []orderpb.AppliedRule) {
	remaining := base
	for _, r := range applied {
		var amount float64
		switch r.AdjustmentType {
		case orderpb.AdjustmentPercentage:
			amount = base * (r.AdjustmentValue / 100)
		case orderpb.AdjustmentFixedAmount:
			amount = r.AdjustmentValue
		}

		switch r.RuleType {
		case orderpb.RuleDiscount:
			if amount > remaining {
				amount = remaining
			}
			discount += amount
			remaining -= amount
		case orderpb.RuleSurcharge:
			surcharge += amount
		}

		trail = append(trail, orderpb.AppliedRule{
			RuleID:    r.RuleID,
			Name:      r.Name,
			Amount:    amount,
			Stackable: r.IsStackable,
			Exclusive: r.IsExclusive,
		})
	}
	return discount, surcharge, trail
}

// PriceItem runs the full pipeline for one item against an already
// time-filtered rule set and writes the resulting rule_discount_amount,
// rule_surcharge_amount, and applied_rules onto it.
func PriceItem(item *orderpb.CartItem, rules []orderpb.PriceRule, zoneID string, isRetail bool) {
	base := item.OriginalPrice
	if base == 0 {
		base = item.Price
	}
	for _, opt := range item.SelectedOptions {
		base += opt.PriceModifier
	}

	matched := MatchingRules(rules, item, zoneID, isRetail)
	resolved := Resolve(matched)
	discount, surcharge, trail := Apply(base, resolved)

	item.RuleDiscountAmount = discount
	item.RuleSurchargeAmount = surcharge
	item.AppliedRules = trail
}
