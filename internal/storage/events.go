package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/crabpos/edge/internal/orderpb"
)

// NextSequence returns the next monotonic per-order sequence number and
// durably advances the counter in the same transaction (spec §3 "Sequence
// numbers are per-order and monotonic").
func (t *Tx) NextSequence(orderID string) (uint64, error) {
	b := t.bucket(BucketSequence)
	key := []byte(orderID)
	var next uint64 = 1
	if raw := b.Get(key); raw != nil {
		next = binary.BigEndian.Uint64(raw) + 1
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := b.Put(key, buf); err != nil {
		return 0, fmt.Errorf("storage: advance sequence for %s: %w", orderID, err)
	}
	return next, nil
}

// eventKey is order_id|sequence, zero-padded so BucketEventsByOrder iterates
// in sequence order under a simple prefix scan.
func eventKey(orderID string, seq uint64) []byte {
	key := make([]byte, len(orderID)+1+8)
	copy(key, orderID)
	key[len(orderID)] = '|'
	binary.BigEndian.PutUint64(key[len(orderID)+1:], seq)
	return key
}

// AppendEvent writes an immutable event record, indexed both globally
// (BucketEvents, keyed by event_id) and per-order (BucketEventsByOrder,
// keyed for ordered replay) (spec §4.2 "events are append-only").
func (t *Tx) AppendEvent(ev *orderpb.OrderEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("storage: marshal event %s: %w", ev.EventID, err)
	}
	if err := t.bucket(BucketEvents).Put([]byte(ev.EventID), raw); err != nil {
		return err
	}
	return t.bucket(BucketEventsByOrder).Put(eventKey(ev.OrderID, ev.Sequence), raw)
}

// EventsForOrder returns every event recorded for orderID in sequence order,
// the replay source for deterministic state reconstruction (spec §4.2
// "Deterministic replay").
func (t *Tx) EventsForOrder(orderID string) ([]*orderpb.OrderEvent, error) {
	b := t.bucket(BucketEventsByOrder)
	c := b.Cursor()
	prefix := append([]byte(orderID), '|')

	var events []*orderpb.OrderEvent
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		var ev orderpb.OrderEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return nil, fmt.Errorf("storage: unmarshal event at %x: %w", k, err)
		}
		events = append(events, &ev)
	}
	return events, nil
}

// DeleteEventsForOrder removes every event recorded for orderID from both
// the global and per-order buckets, used once an order's SQL archive row
// has committed (spec §4.5 step 5, storage.CompleteArchive).
func (t *Tx) DeleteEventsForOrder(orderID string) error {
	byOrder := t.bucket(BucketEventsByOrder)
	events := t.bucket(BucketEvents)
	c := byOrder.Cursor()
	prefix := append([]byte(orderID), '|')

	var keys [][]byte
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		var ev orderpb.OrderEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return fmt.Errorf("storage: unmarshal event at %x: %w", k, err)
		}
		keys = append(keys, append([]byte(nil), k...))
		if err := events.Delete([]byte(ev.EventID)); err != nil {
			return err
		}
	}
	for _, k := range keys {
		if err := byOrder.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
