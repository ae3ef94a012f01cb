package storage

const ruleSnapshotKey = "current"

// StoreRuleSnapshot persists the pricing ruleset most recently pulled from
// the cloud, so an edge node that loses connectivity keeps pricing with the
// last-known rules rather than falling back to no discounts at all (spec
// §4.6 "Rule caching for offline operation").
func (t *Tx) StoreRuleSnapshot(rulesJSON []byte) error {
	return t.bucket(BucketRuleSnapshots).Put([]byte(ruleSnapshotKey), rulesJSON)
}

// GetRuleSnapshot returns the last persisted ruleset, if any.
func (t *Tx) GetRuleSnapshot() ([]byte, bool) {
	raw := t.bucket(BucketRuleSnapshots).Get([]byte(ruleSnapshotKey))
	if raw == nil {
		return nil, false
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, true
}
