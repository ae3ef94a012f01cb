package appliers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crabpos/edge/internal/orderpb"
)

func mkEvent(orderID string, seq uint64, eventType orderpb.EventType, payload interface{}) *orderpb.OrderEvent {
	return &orderpb.OrderEvent{
		EventID:   "ev-" + string(eventType),
		Sequence:  seq,
		OrderID:   orderID,
		Timestamp: time.Now(),
		EventType: eventType,
		Payload:   orderpb.MarshalPayload(payload),
	}
}

func TestHappyPathReplay(t *testing.T) {
	events := []*orderpb.OrderEvent{
		mkEvent("order-1", 1, orderpb.EventOrderCreated, orderpb.PayloadOrderCreated{
			TableID: "T1", GuestCount: 2, ReceiptNumber: "R-0001",
		}),
		mkEvent("order-1", 2, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{
			Items: []orderpb.CartItem{
				{ProductID: "coffee", InstanceID: "i-coffee", Name: "Coffee", Price: 10, OriginalPrice: 10, Quantity: 2},
				{ProductID: "tea", InstanceID: "i-tea", Name: "Tea", Price: 8, OriginalPrice: 8, Quantity: 1},
			},
		}),
		mkEvent("order-1", 3, orderpb.EventPaymentAdded, orderpb.PayloadPaymentAdded{
			PaymentID: "p-1", Method: "CASH", Amount: 28.00,
		}),
		mkEvent("order-1", 4, orderpb.EventOrderCompleted, orderpb.PayloadOrderCompleted{
			PaymentSummary: []orderpb.PaymentSummaryLine{{Method: "CASH", Amount: 28.00}},
		}),
	}

	snap, err := Replay("order-1", events)
	require.NoError(t, err)

	assert.Equal(t, orderpb.StatusCompleted, snap.Status)
	assert.Equal(t, 28.00, snap.Subtotal)
	assert.Equal(t, 28.00, snap.Total)
	assert.Equal(t, 28.00, snap.PaidAmount)
	assert.True(t, orderpb.VerifyChecksum(snap))
	assert.Equal(t, uint64(4), snap.LastSequence)
}

func TestReplayIsDeterministic(t *testing.T) {
	events := []*orderpb.OrderEvent{
		mkEvent("order-1", 1, orderpb.EventOrderCreated, orderpb.PayloadOrderCreated{TableID: "T1"}),
		mkEvent("order-1", 2, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{
			Items: []orderpb.CartItem{{InstanceID: "i-1", Name: "Burger", Price: 12, OriginalPrice: 12, Quantity: 3}},
		}),
	}

	snap1, err := Replay("order-1", events)
	require.NoError(t, err)
	snap2, err := Replay("order-1", events)
	require.NoError(t, err)

	assert.Equal(t, snap1.StateChecksum, snap2.StateChecksum)
}

func TestItemsAddedMergesByInstanceID(t *testing.T) {
	snap := orderpb.NewOrderSnapshot("order-1")
	err := Apply(snap, mkEvent("order-1", 1, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{
		Items: []orderpb.CartItem{{InstanceID: "i-1", Name: "Coffee", Price: 10, OriginalPrice: 10, Quantity: 1}},
	}))
	require.NoError(t, err)

	err = Apply(snap, mkEvent("order-1", 2, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{
		Items: []orderpb.CartItem{{InstanceID: "i-1", Name: "Coffee", Price: 10, OriginalPrice: 10, Quantity: 2}},
	}))
	require.NoError(t, err)

	require.Len(t, snap.Items, 1)
	assert.Equal(t, 3, snap.Items[0].Quantity)
}

func TestCompAndUncompRoundTrip(t *testing.T) {
	snap := orderpb.NewOrderSnapshot("order-1")
	require.NoError(t, Apply(snap, mkEvent("order-1", 1, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{
		Items: []orderpb.CartItem{{InstanceID: "i-burger", Name: "Burger", Price: 12, OriginalPrice: 12, Quantity: 3}},
	})))

	require.NoError(t, Apply(snap, mkEvent("order-1", 2, orderpb.EventItemComped, orderpb.PayloadItemComped{
		SourceInstanceID: "i-burger",
		CompInstanceID:   "i-burger::comp::1",
		Quantity:         1,
		Reason:           "VIP",
		AuthorizerID:     "mgr-1",
		WholeItem:        false,
	})))

	require.Len(t, snap.Items, 2)
	source := snap.FindItem("i-burger")
	require.NotNil(t, source)
	assert.Equal(t, 2, source.Quantity)
	comp := snap.FindItem("i-burger::comp::1")
	require.NotNil(t, comp)
	assert.Equal(t, 1, comp.Quantity)
	assert.True(t, comp.IsComped)
	assert.Equal(t, 24.00, snap.Total) // 2 paid @12 + 1 comped @0

	require.NoError(t, Apply(snap, mkEvent("order-1", 3, orderpb.EventItemUncomped, orderpb.PayloadItemUncomped{
		CompInstanceID: "i-burger::comp::1",
	})))

	assert.Nil(t, snap.FindItem("i-burger::comp::1"))
	source = snap.FindItem("i-burger")
	require.NotNil(t, source)
	assert.Equal(t, 3, source.Quantity)
	assert.Equal(t, 36.00, snap.Total)
	assert.Empty(t, snap.Comps)
}

func TestAmountSplitSetsMutualExclusionFlag(t *testing.T) {
	snap := orderpb.NewOrderSnapshot("order-1")
	require.NoError(t, Apply(snap, mkEvent("order-1", 1, orderpb.EventAmountSplit, orderpb.PayloadAmountSplit{
		Amount: 10, Method: "CASH", PaymentID: "p-1",
	})))
	assert.True(t, snap.HasAmountSplit)
	assert.Equal(t, 10.0, snap.PaidAmount)
}

func TestOrderDiscountAppliedClearsPrePaymentWhenTotalChanges(t *testing.T) {
	snap := orderpb.NewOrderSnapshot("order-1")
	require.NoError(t, Apply(snap, mkEvent("order-1", 1, orderpb.EventItemsAdded, orderpb.PayloadItemsAdded{
		Items: []orderpb.CartItem{{InstanceID: "i-1", Name: "Coffee", Price: 10, OriginalPrice: 10, Quantity: 1}},
	})))
	snap.IsPrePayment = true

	require.NoError(t, Apply(snap, mkEvent("order-1", 2, orderpb.EventOrderDiscountApplied, orderpb.PayloadOrderDiscountApplied{
		PercentOrFixed: "fixed", Value: 2,
	})))

	assert.Equal(t, 8.00, snap.Total)
	assert.False(t, snap.IsPrePayment)
}
