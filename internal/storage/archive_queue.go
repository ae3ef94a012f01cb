package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// PendingArchive is one order awaiting the background archive worker (spec
// §4.5). It tracks enough retry state for exponential backoff without the
// worker needing to consult the event log.
type PendingArchive struct {
	OrderID     string    `json:"order_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	NextRetryAt time.Time `json:"next_retry_at"`
}

// EnqueuePendingArchive adds orderID to the archive queue, ready for
// immediate pickup (spec §4.4 step 8: "terminal events enqueue an archive
// job in the same transaction").
func (t *Tx) EnqueuePendingArchive(orderID string) error {
	entry := PendingArchive{OrderID: orderID, EnqueuedAt: time.Now(), NextRetryAt: time.Now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("storage: marshal pending archive %s: %w", orderID, err)
	}
	return t.bucket(BucketPendingArchive).Put([]byte(orderID), raw)
}

// GetPendingArchives returns every order still waiting to be archived,
// whose NextRetryAt has already passed.
func (t *Tx) GetPendingArchives() ([]PendingArchive, error) {
	var out []PendingArchive
	c := t.bucket(BucketPendingArchive).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var entry PendingArchive
		if err := json.Unmarshal(v, &entry); err != nil {
			return nil, fmt.Errorf("storage: unmarshal pending archive %s: %w", k, err)
		}
		if !entry.NextRetryAt.After(time.Now()) {
			out = append(out, entry)
		}
	}
	return out, nil
}

// MarkArchiveFailed records a failed attempt and bumps NextRetryAt using
// exponential backoff (base 5s, cap 60s — spec §4.5 "Retry policy"). The
// caller is responsible for moving to the dead letter bucket once Attempts
// exceeds the configured maximum.
func (t *Tx) MarkArchiveFailed(orderID string, errMsg string, backoff time.Duration) error {
	b := t.bucket(BucketPendingArchive)
	raw := b.Get([]byte(orderID))
	if raw == nil {
		return fmt.Errorf("storage: mark archive failed: %s not in pending queue", orderID)
	}
	var entry PendingArchive
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("storage: unmarshal pending archive %s: %w", orderID, err)
	}
	entry.Attempts++
	entry.LastError = errMsg
	entry.NextRetryAt = time.Now().Add(backoff)

	updated, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put([]byte(orderID), updated)
}

// CompleteArchive removes orderID's live-store footprint once its archive
// row has been committed to cold storage: the pending-queue entry, the
// snapshot, and the event log (spec §4.5 step 5 — active_orders/table_index
// were already cleared at command-commit time in spec §4.4 step 7).
func (t *Tx) CompleteArchive(orderID string) error {
	if err := t.bucket(BucketPendingArchive).Delete([]byte(orderID)); err != nil {
		return err
	}
	if err := t.DeleteSnapshot(orderID); err != nil {
		return err
	}
	return t.DeleteEventsForOrder(orderID)
}

// PendingArchiveAttempts reports how many attempts have been made so far,
// used by the worker to decide whether to dead-letter instead of retry.
func (t *Tx) PendingArchiveAttempts(orderID string) (int, bool, error) {
	raw := t.bucket(BucketPendingArchive).Get([]byte(orderID))
	if raw == nil {
		return 0, false, nil
	}
	var entry PendingArchive
	if err := json.Unmarshal(raw, &entry); err != nil {
		return 0, false, err
	}
	return entry.Attempts, true, nil
}
