package commands

import (
	"time"

	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/storage"
)

// CommandContext carries everything a handler may consult beyond the
// snapshot and command themselves: the write transaction (for read-only
// invariant checks like table occupancy), a sequence allocator, the
// command's timestamp (never time.Now() — determinism requires the clock
// enter only through the event), and the order's time-filtered pricing
// rules (spec §4.4 step 5 filters these before the handler ever runs).
type CommandContext struct {
	Tx      *storage.Tx
	NextSeq func() (uint64, error)
	Now     time.Time
	Rules   []orderpb.PriceRule
}

func (c *CommandContext) newEvent(orderID string, cmd *orderpb.OrderCommand, eventType orderpb.EventType, payload interface{}) (*orderpb.OrderEvent, error) {
	seq, err := c.NextSeq()
	if err != nil {
		return nil, err
	}
	return &orderpb.OrderEvent{
		EventID:      cmd.CommandID + ":" + string(eventType),
		Sequence:     seq,
		OrderID:      orderID,
		Timestamp:    c.Now,
		OperatorID:   cmd.OperatorID,
		OperatorName: cmd.OperatorName,
		CommandID:    cmd.CommandID,
		EventType:    eventType,
		Payload:      orderpb.MarshalPayload(payload),
	}, nil
}

// requireActive is the precondition nearly every handler shares: the order
// must exist and be Active, otherwise the uniform not-found/state errors
// apply (spec §4.3's error table).
func requireActive(snapshot *orderpb.OrderSnapshot, orderID string) *OrderError {
	if snapshot == nil {
		return errOrderNotFound(orderID)
	}
	switch snapshot.Status {
	case orderpb.StatusActive:
		return nil
	case orderpb.StatusCompleted:
		return errOrderAlreadyCompleted(orderID)
	case orderpb.StatusVoid:
		return errOrderAlreadyVoided(orderID)
	default:
		return errInvalidOperation(orderID, "order status does not allow this operation")
	}
}
