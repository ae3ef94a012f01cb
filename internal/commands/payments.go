package commands

import (
	"github.com/google/uuid"

	"github.com/crabpos/edge/internal/money"
	"github.com/crabpos/edge/internal/orderpb"
)

func moneyPaymentSufficient(snapshot *orderpb.OrderSnapshot) bool {
	return money.IsPaymentSufficient(snapshot.PaidAmount, snapshot.Total)
}

// paymentSummaryByMethod aggregates non-cancelled payments by method for
// the receipt the OrderCompleted event carries (spec §4.3 CompleteOrder).
func paymentSummaryByMethod(snapshot *orderpb.OrderSnapshot) []orderpb.PaymentSummaryLine {
	totals := map[string]float64{}
	order := []string{}
	for _, p := range snapshot.Payments {
		if p.Cancelled {
			continue
		}
		if _, seen := totals[p.Method]; !seen {
			order = append(order, p.Method)
		}
		totals[p.Method] += p.Amount
	}
	summary := make([]orderpb.PaymentSummaryLine, 0, len(order))
	for _, method := range order {
		summary = append(summary, orderpb.PaymentSummaryLine{Method: method, Amount: money.ToFloat(money.FromFloat(totals[method]))})
	}
	return summary
}

func handleAddPayment(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.AddPaymentPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed AddPayment payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}
	if p.Amount <= 0 {
		return nil, errInvalidAmount(cmd.OrderID)
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventPaymentAdded, orderpb.PayloadPaymentAdded{
		PaymentID: uuid.NewString(),
		Method:    p.Method,
		Amount:    p.Amount,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}

func handleCancelPayment(snapshot *orderpb.OrderSnapshot, cmd *orderpb.OrderCommand, ctx *CommandContext) ([]*orderpb.OrderEvent, error) {
	p, ok := cmd.Payload.(orderpb.CancelPaymentPayload)
	if !ok {
		return nil, errInvalidOperation(cmd.OrderID, "malformed CancelPayment payload")
	}
	if err := requireActive(snapshot, cmd.OrderID); err != nil {
		return nil, err
	}

	payment := snapshot.FindPayment(p.PaymentID)
	if payment == nil {
		return nil, errPaymentNotFound(cmd.OrderID, p.PaymentID)
	}
	if payment.Cancelled {
		return nil, errInvalidOperation(cmd.OrderID, "payment already cancelled")
	}

	ev, err := ctx.newEvent(cmd.OrderID, cmd, orderpb.EventPaymentCancelled, orderpb.PayloadPaymentCancelled{
		PaymentID: p.PaymentID,
	})
	if err != nil {
		return nil, err
	}
	return []*orderpb.OrderEvent{ev}, nil
}
