package storage

// MarkOrderActive records orderID as the live order occupying tableID, so a
// waiter's tablet can resolve "the order at table 7" without a full scan
// (spec §4.1 "table index").
func (t *Tx) MarkOrderActive(orderID, tableID string) error {
	if err := t.bucket(BucketActiveOrders).Put([]byte(orderID), []byte(tableID)); err != nil {
		return err
	}
	return t.bucket(BucketTableIndex).Put([]byte(tableID), []byte(orderID))
}

// MarkOrderInactive removes an order from both the active-order set and its
// table index entry once it reaches a terminal status (spec §4.5).
func (t *Tx) MarkOrderInactive(orderID string) error {
	tableID := t.bucket(BucketActiveOrders).Get([]byte(orderID))
	if tableID != nil {
		if existing := t.bucket(BucketTableIndex).Get(tableID); existing != nil && string(existing) == orderID {
			if err := t.bucket(BucketTableIndex).Delete(tableID); err != nil {
				return err
			}
		}
	}
	return t.bucket(BucketActiveOrders).Delete([]byte(orderID))
}

// MoveOrderActiveTable re-points the table index when an already-active
// order moves tables (spec §4.3 MoveOrder): it clears fromTableID's entry
// (only if it still points at orderID) before recording orderID against
// toTableID, so a stale table_index entry never survives a move and the
// moved-to table is never left unregistered.
func (t *Tx) MoveOrderActiveTable(orderID, fromTableID, toTableID string) error {
	if fromTableID != "" && fromTableID != toTableID {
		if existing := t.bucket(BucketTableIndex).Get([]byte(fromTableID)); existing != nil && string(existing) == orderID {
			if err := t.bucket(BucketTableIndex).Delete([]byte(fromTableID)); err != nil {
				return err
			}
		}
	}
	return t.MarkOrderActive(orderID, toTableID)
}

// FindActiveOrderForTable returns the order currently occupying tableID, if
// any. The OpenTable and MoveOrder handlers use it to reject a table that
// another active order already occupies (spec §4.3).
func (t *Tx) FindActiveOrderForTable(tableID string) (string, bool) {
	raw := t.bucket(BucketTableIndex).Get([]byte(tableID))
	if raw == nil {
		return "", false
	}
	return string(raw), true
}

// ActiveOrderIDs lists every order currently marked active, used by the
// orchestrator's boot recovery sweep (spec §4.4 "Boot recovery").
func (t *Tx) ActiveOrderIDs() ([]string, error) {
	var ids []string
	c := t.bucket(BucketActiveOrders).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		ids = append(ids, string(k))
	}
	return ids, nil
}
