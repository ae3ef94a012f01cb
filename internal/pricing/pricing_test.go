package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/crabpos/edge/internal/orderpb"
)

func TestIsTimeValidRejectsExpiredRule(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	rule := orderpb.PriceRule{ValidUntil: &past}
	assert.False(t, IsTimeValid(rule, time.Now()))
}

func TestIsTimeValidAcceptsActiveDayAndWindow(t *testing.T) {
	now := time.Now()
	rule := orderpb.PriceRule{
		ActiveDays:      []int{int(now.Local().Weekday())},
		ActiveStartTime: "00:00",
		ActiveEndTime:   "23:59",
	}
	assert.True(t, IsTimeValid(rule, now))
}

func TestIsTimeValidRejectsWrongDay(t *testing.T) {
	now := time.Now()
	wrongDay := (int(now.Local().Weekday()) + 1) % 7
	rule := orderpb.PriceRule{ActiveDays: []int{wrongDay}}
	assert.False(t, IsTimeValid(rule, now))
}

func TestExclusiveRuleShortCircuits(t *testing.T) {
	matched := []orderpb.PriceRule{
		{RuleID: "stackable-a", IsStackable: true, Priority: 5},
		{RuleID: "exclusive-b", IsExclusive: true, Priority: 10},
		{RuleID: "stackable-c", IsStackable: true, Priority: 1},
	}
	resolved := Resolve(matched)
	if assertLen(t, resolved, 1) {
		assert.Equal(t, "exclusive-b", resolved[0].RuleID)
	}
}

func TestStackableRulesAllApplyNonStackableOnlyHighestPriority(t *testing.T) {
	matched := []orderpb.PriceRule{
		{RuleID: "stack-1", IsStackable: true, Priority: 10},
		{RuleID: "stack-2", IsStackable: true, Priority: 8},
		{RuleID: "nonstack-high", Priority: 6},
		{RuleID: "nonstack-low", Priority: 2},
	}
	resolved := Resolve(matched)
	ids := make([]string, len(resolved))
	for i, r := range resolved {
		ids[i] = r.RuleID
	}
	assert.ElementsMatch(t, []string{"stack-1", "stack-2", "nonstack-high"}, ids)
}

func TestApplyDiscountClampedToBase(t *testing.T) {
	rules := []orderpb.PriceRule{
		{RuleID: "big-discount", RuleType: orderpb.RuleDiscount, AdjustmentType: orderpb.AdjustmentFixedAmount, AdjustmentValue: 100},
	}
	discount, surcharge, trail := Apply(10, rules)
	assert.Equal(t, 10.0, discount)
	assert.Equal(t, 0.0, surcharge)
	assert.Len(t, trail, 1)
}

func TestPriceItemWritesAuditTrail(t *testing.T) {
	item := &orderpb.CartItem{ProductID: "coffee", OriginalPrice: 10, Quantity: 1}
	rules := []orderpb.PriceRule{
		{RuleID: "happy-hour", RuleType: orderpb.RuleDiscount, ProductScope: orderpb.ScopeGlobal,
			ZoneScope: "zone:all", AdjustmentType: orderpb.AdjustmentPercentage, AdjustmentValue: 20},
	}
	PriceItem(item, rules, "zone-1", false)
	assert.Equal(t, 2.0, item.RuleDiscountAmount)
	assert.Len(t, item.AppliedRules, 1)
}

func assertLen(t *testing.T, rules []orderpb.PriceRule, n int) bool {
	t.Helper()
	return assert.Len(t, rules, n)
}
