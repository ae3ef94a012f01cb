package commands

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crabpos/edge/internal/appliers"
	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/storage"
)

// run executes cmd against snapshot (which may be nil for OpenTable) inside
// a real bbolt transaction, applies the resulting events, and persists the
// updated snapshot — mirroring the orders manager's execute_command
// protocol (spec §4.4) closely enough to exercise handlers and appliers
// together without a mock store.
func run(t *testing.T, store *storage.Store, orderID string, cmdType orderpb.CommandType, payload interface{}) (*orderpb.OrderSnapshot, []*orderpb.OrderEvent, error) {
	t.Helper()
	cmd := &orderpb.OrderCommand{
		CommandID:    orderID + "-" + string(cmdType),
		OrderID:      orderID,
		OperatorID:   "op-1",
		OperatorName: "Operator",
		Timestamp:    time.Now(),
		Type:         cmdType,
		Payload:      payload,
	}

	var snapshot *orderpb.OrderSnapshot
	var events []*orderpb.OrderEvent
	var handlerErr error

	err := store.Update(func(tx *storage.Tx) error {
		existing, err := tx.GetSnapshot(orderID)
		require.NoError(t, err)
		if existing == nil {
			existing = orderpb.NewOrderSnapshot(orderID)
		}
		snapshot = existing

		ctx := &CommandContext{
			Tx:      tx,
			Now:     cmd.Timestamp,
			NextSeq: func() (uint64, error) { return tx.NextSequence(orderID) },
		}

		events, handlerErr = Handle(snapshot, cmd, ctx)
		if handlerErr != nil {
			return nil
		}
		for _, ev := range events {
			target := snapshot
			if ev.OrderID != orderID {
				other, err := tx.GetSnapshot(ev.OrderID)
				if err != nil {
					return err
				}
				target = other
			}
			if err := appliers.Apply(target, ev); err != nil {
				return err
			}
			if err := tx.AppendEvent(ev); err != nil {
				return err
			}
			if err := tx.StoreSnapshot(target); err != nil {
				return err
			}
		}
		if cmdType == orderpb.CmdOpenTable {
			if err := tx.MarkOrderActive(orderID, snapshot.TableID); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return snapshot, events, handlerErr
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edge.db")
	store, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHappyPathScenario(t *testing.T) {
	store := openTestStore(t)

	_, _, err := run(t, store, "order-1", orderpb.CmdOpenTable, orderpb.OpenTablePayload{
		TableID: "T1", GuestCount: 2,
	})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdAddItems, orderpb.AddItemsPayload{
		Items: []orderpb.CartItem{
			{ProductID: "coffee", Name: "Coffee", Price: 10, OriginalPrice: 10, Quantity: 2},
			{ProductID: "tea", Name: "Tea", Price: 8, OriginalPrice: 8, Quantity: 1},
		},
	})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdAddPayment, orderpb.AddPaymentPayload{
		Method: "CASH", Amount: 28.00,
	})
	require.NoError(t, err)

	snap, _, err := run(t, store, "order-1", orderpb.CmdCompleteOrder, orderpb.CompleteOrderPayload{
		ReceiptNumber: "R-0001",
	})
	require.NoError(t, err)

	assert.Equal(t, orderpb.StatusCompleted, snap.Status)
	assert.Equal(t, 28.00, snap.Subtotal)
	assert.Equal(t, 28.00, snap.Total)
	assert.Equal(t, 28.00, snap.PaidAmount)
}

func TestTableOccupancyOnMove(t *testing.T) {
	store := openTestStore(t)

	_, _, err := run(t, store, "order-1", orderpb.CmdOpenTable, orderpb.OpenTablePayload{TableID: "T1"})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-2", orderpb.CmdOpenTable, orderpb.OpenTablePayload{TableID: "T2"})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdMoveOrder, orderpb.MoveOrderPayload{TargetTableID: "T2"})
	require.Error(t, err)
	orderErr, ok := err.(*OrderError)
	require.True(t, ok)
	assert.Equal(t, CodeTableOccupied, orderErr.Code)

	_, _, err = run(t, store, "order-1", orderpb.CmdMoveOrder, orderpb.MoveOrderPayload{TargetTableID: "T1"})
	require.NoError(t, err)
}

func TestPaymentToleranceScenario(t *testing.T) {
	store := openTestStore(t)
	_, _, err := run(t, store, "order-1", orderpb.CmdOpenTable, orderpb.OpenTablePayload{TableID: "T1"})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-1", orderpb.CmdAddItems, orderpb.AddItemsPayload{
		Items: []orderpb.CartItem{{ProductID: "x", Name: "X", Price: 100, OriginalPrice: 100, Quantity: 1}},
	})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdAddPayment, orderpb.AddPaymentPayload{Method: "CASH", Amount: 99.995})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-1", orderpb.CmdCompleteOrder, orderpb.CompleteOrderPayload{})
	require.NoError(t, err)
}

func TestPaymentInsufficientFailsCompletion(t *testing.T) {
	store := openTestStore(t)
	_, _, err := run(t, store, "order-1", orderpb.CmdOpenTable, orderpb.OpenTablePayload{TableID: "T1"})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-1", orderpb.CmdAddItems, orderpb.AddItemsPayload{
		Items: []orderpb.CartItem{{ProductID: "x", Name: "X", Price: 100, OriginalPrice: 100, Quantity: 1}},
	})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-1", orderpb.CmdAddPayment, orderpb.AddPaymentPayload{Method: "CASH", Amount: 99.98})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdCompleteOrder, orderpb.CompleteOrderPayload{})
	require.Error(t, err)
	orderErr, ok := err.(*OrderError)
	require.True(t, ok)
	assert.Equal(t, CodeInvalidOperation, orderErr.Code)
}

func TestSplitMutualExclusionScenario(t *testing.T) {
	store := openTestStore(t)
	_, _, err := run(t, store, "order-1", orderpb.CmdOpenTable, orderpb.OpenTablePayload{TableID: "T1"})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-1", orderpb.CmdAddItems, orderpb.AddItemsPayload{
		Items: []orderpb.CartItem{{ProductID: "x", Name: "X", Price: 46, OriginalPrice: 46, Quantity: 1}},
	})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdSplitByAmount, orderpb.SplitByAmountPayload{Amount: 10, Method: "CASH"})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdSplitByItems, orderpb.SplitByItemsPayload{
		Instances: []string{"whatever"}, Method: "CASH",
	})
	require.Error(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdStartAASplit, orderpb.StartAASplitPayload{
		TotalShares: 3, PaidShares: 1, Method: "CASH",
	})
	require.NoError(t, err)

	_, _, err = run(t, store, "order-1", orderpb.CmdSplitByAmount, orderpb.SplitByAmountPayload{Amount: 10, Method: "CASH"})
	require.Error(t, err)
}

func TestCompItemPartialSplitsOffCompedLine(t *testing.T) {
	store := openTestStore(t)
	_, _, err := run(t, store, "order-1", orderpb.CmdOpenTable, orderpb.OpenTablePayload{TableID: "T1"})
	require.NoError(t, err)
	_, _, err = run(t, store, "order-1", orderpb.CmdAddItems, orderpb.AddItemsPayload{
		Items: []orderpb.CartItem{{ProductID: "burger", InstanceID: "burger-1", Name: "Burger", Price: 12, OriginalPrice: 12, Quantity: 3}},
	})
	require.NoError(t, err)

	snap, _, err := run(t, store, "order-1", orderpb.CmdCompItem, orderpb.CompItemPayload{
		InstanceID: "burger-1", Quantity: 1, Reason: "VIP", AuthorizerID: "mgr-1",
	})
	require.NoError(t, err)
	require.Len(t, snap.Items, 2)
	assert.Equal(t, 24.00, snap.Total)
}
