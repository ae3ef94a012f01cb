package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crabpos/edge/internal/orderpb"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edge.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	snap := orderpb.NewOrderSnapshot("order-1")
	snap.TableID = "table-7"
	snap.Total = 42.50

	err := store.Update(func(tx *Tx) error {
		return tx.StoreSnapshot(snap)
	})
	require.NoError(t, err)

	var loaded *orderpb.OrderSnapshot
	err = store.View(func(tx *Tx) error {
		var err error
		loaded, err = tx.GetSnapshot("order-1")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "table-7", loaded.TableID)
	assert.Equal(t, 42.50, loaded.Total)
}

func TestGetSnapshotMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)
	var loaded *orderpb.OrderSnapshot
	err := store.View(func(tx *Tx) error {
		var err error
		loaded, err = tx.GetSnapshot("does-not-exist")
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSequenceIsMonotonicPerOrder(t *testing.T) {
	store := openTestStore(t)

	var seqs []uint64
	err := store.Update(func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			seq, err := tx.NextSequence("order-1")
			if err != nil {
				return err
			}
			seqs = append(seqs, seq)
		}
		// a second order's sequence starts independently at 1
		otherSeq, err := tx.NextSequence("order-2")
		if err != nil {
			return err
		}
		assert.Equal(t, uint64(1), otherSeq)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
}

func TestEventsForOrderReturnsInSequenceOrder(t *testing.T) {
	store := openTestStore(t)

	err := store.Update(func(tx *Tx) error {
		for i := uint64(1); i <= 3; i++ {
			ev := &orderpb.OrderEvent{
				EventID:   string(rune('a' + i)),
				Sequence:  i,
				OrderID:   "order-1",
				EventType: orderpb.EventItemsAdded,
				Timestamp: time.Now(),
			}
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
		}
		// an event for a different order must not leak into order-1's replay
		return tx.AppendEvent(&orderpb.OrderEvent{
			EventID:   "other",
			Sequence:  1,
			OrderID:   "order-2",
			EventType: orderpb.EventOrderCreated,
			Timestamp: time.Now(),
		})
	})
	require.NoError(t, err)

	var events []*orderpb.OrderEvent
	err = store.View(func(tx *Tx) error {
		var err error
		events, err = tx.EventsForOrder("order-1")
		return err
	})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, uint64(1), events[0].Sequence)
	assert.Equal(t, uint64(2), events[1].Sequence)
	assert.Equal(t, uint64(3), events[2].Sequence)
}

func TestTableIndexRoundTrip(t *testing.T) {
	store := openTestStore(t)

	err := store.Update(func(tx *Tx) error {
		return tx.MarkOrderActive("order-1", "table-7")
	})
	require.NoError(t, err)

	err = store.View(func(tx *Tx) error {
		orderID, ok := tx.FindActiveOrderForTable("table-7")
		assert.True(t, ok)
		assert.Equal(t, "order-1", orderID)
		return nil
	})
	require.NoError(t, err)

	err = store.Update(func(tx *Tx) error {
		return tx.MarkOrderInactive("order-1")
	})
	require.NoError(t, err)

	err = store.View(func(tx *Tx) error {
		_, ok := tx.FindActiveOrderForTable("table-7")
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestArchiveQueueFailureBackoffAndDeadLetter(t *testing.T) {
	store := openTestStore(t)

	err := store.Update(func(tx *Tx) error {
		return tx.EnqueuePendingArchive("order-1")
	})
	require.NoError(t, err)

	err = store.Update(func(tx *Tx) error {
		return tx.MarkArchiveFailed("order-1", "disk full", 5*time.Second)
	})
	require.NoError(t, err)

	err = store.View(func(tx *Tx) error {
		attempts, found, err := tx.PendingArchiveAttempts("order-1")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 1, attempts)
		return nil
	})
	require.NoError(t, err)

	// a failed entry whose retry window hasn't elapsed is excluded from the
	// worker's pickup list
	err = store.View(func(tx *Tx) error {
		pending, err := tx.GetPendingArchives()
		require.NoError(t, err)
		assert.Empty(t, pending)
		return nil
	})
	require.NoError(t, err)

	err = store.Update(func(tx *Tx) error {
		return tx.MoveToDeadLetter("order-1", "disk full", 3)
	})
	require.NoError(t, err)

	err = store.View(func(tx *Tx) error {
		letters, err := tx.DeadLetters()
		require.NoError(t, err)
		require.Len(t, letters, 1)
		assert.Equal(t, "order-1", letters[0].OrderID)
		return nil
	})
	require.NoError(t, err)

	// moving to dead letter twice must not error or duplicate the entry
	err = store.Update(func(tx *Tx) error {
		return tx.MoveToDeadLetter("order-1", "disk full", 3)
	})
	require.NoError(t, err)

	recovered := 0
	err = store.Update(func(tx *Tx) error {
		var err error
		recovered, err = tx.RecoverAllDeadLetters()
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	err = store.View(func(tx *Tx) error {
		letters, err := tx.DeadLetters()
		require.NoError(t, err)
		assert.Empty(t, letters)
		pending, err := tx.GetPendingArchives()
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "order-1", pending[0].OrderID)
		return nil
	})
	require.NoError(t, err)
}

func TestCommandLedgerDedup(t *testing.T) {
	store := openTestStore(t)

	_, found, err := storeLookup(t, store, "cmd-1")
	require.NoError(t, err)
	assert.False(t, found)

	err = store.Update(func(tx *Tx) error {
		return tx.RecordCommand("cmd-1", "order-1", []byte(`{"ok":true}`))
	})
	require.NoError(t, err)

	entry, found, err := storeLookup(t, store, "cmd-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "order-1", entry.OrderID)
	assert.JSONEq(t, `{"ok":true}`, string(entry.Result))
}

func storeLookup(t *testing.T, store *Store, commandID string) (*LedgerEntry, bool, error) {
	t.Helper()
	var entry *LedgerEntry
	var found bool
	err := store.View(func(tx *Tx) error {
		var err error
		entry, found, err = tx.LookupCommand(commandID)
		return err
	})
	return entry, found, err
}
