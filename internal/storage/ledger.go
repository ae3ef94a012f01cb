package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// LedgerEntry records that command_id has already been executed and what it
// produced, so a redelivered command (bus retry, cloud sync at-least-once
// redelivery) is answered from the ledger instead of applied twice (spec §9
// Open Question "Command idempotency", resolved here with a dedicated
// bucket rather than folding dedup into the event log).
type LedgerEntry struct {
	CommandID string          `json:"command_id"`
	OrderID   string          `json:"order_id"`
	Result    json.RawMessage `json:"result"`
	AppliedAt time.Time       `json:"applied_at"`
}

// RecordCommand writes the ledger entry for a just-applied command. Callers
// append this in the same transaction as the command's events and snapshot
// write, so a crash between "applied" and "recorded" cannot happen.
func (t *Tx) RecordCommand(commandID, orderID string, result json.RawMessage) error {
	entry := LedgerEntry{CommandID: commandID, OrderID: orderID, Result: result, AppliedAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: marshal ledger entry %s: %w", commandID, err)
	}
	return t.bucket(BucketCommandLedger).Put([]byte(commandID), raw)
}

// LookupCommand returns the recorded result of a previously applied
// command, if commandID has been seen before.
func (t *Tx) LookupCommand(commandID string) (*LedgerEntry, bool, error) {
	raw := t.bucket(BucketCommandLedger).Get([]byte(commandID))
	if raw == nil {
		return nil, false, nil
	}
	var entry LedgerEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("storage: unmarshal ledger entry %s: %w", commandID, err)
	}
	return &entry, true, nil
}
