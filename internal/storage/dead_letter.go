package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeadLetter is an order whose archive attempts were exhausted (spec §4.5
// "after MAX_RETRY_COUNT failed attempts, move to dead letter").
type DeadLetter struct {
	OrderID    string    `json:"order_id"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error"`
	MovedAt    time.Time `json:"moved_at"`
}

// MoveToDeadLetter transitions orderID from the pending archive queue to
// the dead letter bucket. It is idempotent: calling it twice for the same
// order is a no-op on the second call, since a dead-lettered order has
// already been removed from BucketPendingArchive and a retry loop racing
// with a manual recovery must not clobber the recorded failure.
func (t *Tx) MoveToDeadLetter(orderID, lastError string, attempts int) error {
	b := t.bucket(BucketDeadLetter)
	if existing := b.Get([]byte(orderID)); existing != nil {
		return nil
	}

	entry := DeadLetter{
		OrderID:   orderID,
		Attempts:  attempts,
		LastError: lastError,
		MovedAt:   time.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: marshal dead letter %s: %w", orderID, err)
	}
	if err := b.Put([]byte(orderID), raw); err != nil {
		return err
	}
	return t.bucket(BucketPendingArchive).Delete([]byte(orderID))
}

// DeadLetters lists every order parked in the dead letter bucket.
func (t *Tx) DeadLetters() ([]DeadLetter, error) {
	var out []DeadLetter
	c := t.bucket(BucketDeadLetter).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var entry DeadLetter
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, fmt.Errorf("storage: unmarshal dead letter %s: %w", k, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// RecoverDeadLetter moves an order back into the pending archive queue with
// its attempt counter reset, used by an operator-triggered or boot-time
// recovery sweep (spec §4.4 "Boot recovery": "dead-lettered orders are
// restored to pending so they get another chance once the operator has
// investigated").
func (t *Tx) RecoverDeadLetter(orderID string) error {
	b := t.bucket(BucketDeadLetter)
	if b.Get([]byte(orderID)) == nil {
		return fmt.Errorf("storage: recover dead letter: %s not found", orderID)
	}
	if err := b.Delete([]byte(orderID)); err != nil {
		return err
	}
	return t.EnqueuePendingArchive(orderID)
}

// RecoverAllDeadLetters restores every dead-lettered order to pending, run
// once at boot (spec §4.4 "Boot recovery").
func (t *Tx) RecoverAllDeadLetters() (int, error) {
	letters, err := t.DeadLetters()
	if err != nil {
		return 0, err
	}
	for _, dl := range letters {
		if err := t.RecoverDeadLetter(dl.OrderID); err != nil {
			return 0, err
		}
	}
	return len(letters), nil
}
