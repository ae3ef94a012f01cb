package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/storage"
)

func openTestArchive(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	return store
}

func sampleSnapshot(orderID string) *orderpb.OrderSnapshot {
	return &orderpb.OrderSnapshot{
		OrderID:       orderID,
		Status:        orderpb.StatusCompleted,
		TableID:       "T1",
		ReceiptNumber: "R-0001",
		Items: []orderpb.CartItem{
			{InstanceID: "i1", ProductID: "coffee", Name: "Coffee", Quantity: 2, UnitPrice: 10, LineTotal: 20, TaxRate: 10},
		},
		Payments: []orderpb.PaymentRecord{
			{ID: "p1", Method: "CASH", Amount: 20, CreatedAt: time.Now()},
		},
		Subtotal:   20,
		Total:      20,
		PaidAmount: 20,
		UpdatedAt:  time.Now(),
	}
}

func sampleEvents(orderID, operatorID, operatorName string) []*orderpb.OrderEvent {
	return []*orderpb.OrderEvent{
		{EventID: "e1", OrderID: orderID, Sequence: 1, EventType: orderpb.EventOrderCreated, OperatorID: operatorID, OperatorName: operatorName, Timestamp: time.Now()},
		{EventID: "e2", OrderID: orderID, Sequence: 2, EventType: orderpb.EventOrderCompleted, OperatorID: operatorID, OperatorName: operatorName, Timestamp: time.Now()},
	}
}

func TestArchiveOrderWritesAllRows(t *testing.T) {
	store := openTestArchive(t)
	snap := sampleSnapshot("order-1")
	events := sampleEvents("order-1", "op-1", "Operator")

	require.NoError(t, store.ArchiveOrder(snap, events, "op-1", "Operator"))

	summary, err := store.GetArchivedOrder("order-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, "Completed", summary.Status)
	assert.Equal(t, 20.0, summary.Total)

	items, err := store.ItemsForOrder("order-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Coffee", items[0].Name)

	payments, err := store.PaymentsForOrder("order-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 20.0, payments[0].Amount)

	evRows, err := store.EventsForOrder("order-1")
	require.NoError(t, err)
	assert.Len(t, evRows, 2)
}

func TestArchiveOrderSkipsCancelledPayments(t *testing.T) {
	store := openTestArchive(t)
	snap := sampleSnapshot("order-2")
	snap.Payments = append(snap.Payments, orderpb.PaymentRecord{ID: "p2", Method: "CARD", Amount: 5, Cancelled: true})

	require.NoError(t, store.ArchiveOrder(snap, sampleEvents("order-2", "op-1", "Operator"), "op-1", "Operator"))

	payments, err := store.PaymentsForOrder("order-2")
	require.NoError(t, err)
	assert.Len(t, payments, 1, "cancelled payment must not be archived")
}

func TestAddCashPaymentAccumulates(t *testing.T) {
	store := openTestArchive(t)

	require.NoError(t, store.AddCashPayment("op-1", 20))
	require.NoError(t, store.AddCashPayment("op-1", 15))

	shift, err := store.GetShift("op-1")
	require.NoError(t, err)
	require.NotNil(t, shift)
	assert.Equal(t, 35.0, shift.ExpectedCash)
}

func TestWorkerScanArchivesPendingOrder(t *testing.T) {
	orderStore, err := storage.Open(filepath.Join(t.TempDir(), "edge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orderStore.Close() })
	archiveStore := openTestArchive(t)

	snap := sampleSnapshot("order-3")
	events := sampleEvents("order-3", "op-1", "Operator")
	err = orderStore.Update(func(tx *storage.Tx) error {
		for _, ev := range events {
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
		}
		if err := tx.StoreSnapshot(snap); err != nil {
			return err
		}
		return tx.EnqueuePendingArchive("order-3")
	})
	require.NoError(t, err)

	worker := NewWorker(orderStore, archiveStore, 2)
	worker.ScanOnce(context.Background())
	// processOrder runs in a goroutine behind the semaphore; give it a beat.
	time.Sleep(200 * time.Millisecond)

	summary, err := archiveStore.GetArchivedOrder("order-3")
	require.NoError(t, err)
	require.NotNil(t, summary)

	err = orderStore.View(func(tx *storage.Tx) error {
		snap, err := tx.GetSnapshot("order-3")
		require.NoError(t, err)
		assert.Nil(t, snap, "live snapshot should be cleaned up after archival")

		pending, err := tx.GetPendingArchives()
		require.NoError(t, err)
		assert.Empty(t, pending)
		return nil
	})
	require.NoError(t, err)

	shift, err := archiveStore.GetShift("op-1")
	require.NoError(t, err)
	require.NotNil(t, shift)
	assert.Equal(t, 20.0, shift.ExpectedCash)
}

func TestWorkerSkipsShiftCashForCancelledVoid(t *testing.T) {
	orderStore, err := storage.Open(filepath.Join(t.TempDir(), "edge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orderStore.Close() })
	archiveStore := openTestArchive(t)

	snap := sampleSnapshot("order-4")
	snap.Status = orderpb.StatusVoid
	snap.VoidReason = orderpb.VoidCancelled
	events := []*orderpb.OrderEvent{
		{EventID: "e1", OrderID: "order-4", Sequence: 1, EventType: orderpb.EventOrderVoided, OperatorID: "op-2", OperatorName: "Operator2", Timestamp: time.Now()},
	}
	err = orderStore.Update(func(tx *storage.Tx) error {
		for _, ev := range events {
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
		}
		if err := tx.StoreSnapshot(snap); err != nil {
			return err
		}
		return tx.EnqueuePendingArchive("order-4")
	})
	require.NoError(t, err)

	worker := NewWorker(orderStore, archiveStore, 2)
	worker.ScanOnce(context.Background())
	time.Sleep(200 * time.Millisecond)

	shift, err := archiveStore.GetShift("op-2")
	require.NoError(t, err)
	assert.Nil(t, shift, "cancelled void must not move shift cash")
}

func TestDeadLetterAfterMaxRetries(t *testing.T) {
	orderStore, err := storage.Open(filepath.Join(t.TempDir(), "edge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { orderStore.Close() })
	archiveStore := openTestArchive(t)

	err = orderStore.Update(func(tx *storage.Tx) error {
		if err := tx.EnqueuePendingArchive("order-5"); err != nil {
			return err
		}
		for i := 0; i < MaxRetryCount; i++ {
			if err := tx.MarkArchiveFailed("order-5", "boom", 0); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	worker := NewWorker(orderStore, archiveStore, 2)
	worker.ScanOnce(context.Background())

	err = orderStore.View(func(tx *storage.Tx) error {
		pending, err := tx.GetPendingArchives()
		require.NoError(t, err)
		for _, p := range pending {
			assert.NotEqual(t, "order-5", p.OrderID)
		}
		return nil
	})
	require.NoError(t, err)
}
