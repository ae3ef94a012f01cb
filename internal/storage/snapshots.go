package storage

import (
	"encoding/json"
	"fmt"

	"github.com/crabpos/edge/internal/orderpb"
)

// GetSnapshot loads the current materialized state of an order, or nil if
// no snapshot has ever been stored for it.
func (t *Tx) GetSnapshot(orderID string) (*orderpb.OrderSnapshot, error) {
	raw := t.bucket(BucketSnapshots).Get([]byte(orderID))
	if raw == nil {
		return nil, nil
	}
	var snap orderpb.OrderSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("storage: unmarshal snapshot %s: %w", orderID, err)
	}
	return &snap, nil
}

// StoreSnapshot persists the snapshot, replacing whatever was there before.
// Callers must have already recomputed totals and the state checksum.
func (t *Tx) StoreSnapshot(snap *orderpb.OrderSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: marshal snapshot %s: %w", snap.OrderID, err)
	}
	return t.bucket(BucketSnapshots).Put([]byte(snap.OrderID), raw)
}

// DeleteSnapshot removes the live snapshot once an order has been archived
// (spec §4.5: the edge only keeps a bounded window of terminal orders).
func (t *Tx) DeleteSnapshot(orderID string) error {
	return t.bucket(BucketSnapshots).Delete([]byte(orderID))
}
