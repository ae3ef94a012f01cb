package appliers

import (
	"github.com/crabpos/edge/internal/money"
	"github.com/crabpos/edge/internal/orderpb"
)

func recomputePaidAmount(s *orderpb.OrderSnapshot) {
	amounts := make([]float64, len(s.Payments))
	cancelled := make([]bool, len(s.Payments))
	for i, p := range s.Payments {
		amounts[i] = p.Amount
		cancelled[i] = p.Cancelled
	}
	s.PaidAmount = money.SumPayments(amounts, cancelled)
}

func applyPaymentAdded(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadPaymentAdded
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	s.Payments = append(s.Payments, orderpb.PaymentRecord{
		ID:        p.PaymentID,
		Method:    p.Method,
		Amount:    p.Amount,
		Cancelled: false,
		CreatedAt: ev.Timestamp,
	})
	recomputePaidAmount(s)
	return nil
}

func applyPaymentCancelled(s *orderpb.OrderSnapshot, ev *orderpb.OrderEvent) error {
	var p orderpb.PayloadPaymentCancelled
	if err := decodePayload(ev.Payload, &p); err != nil {
		return err
	}
	if payment := s.FindPayment(p.PaymentID); payment != nil {
		payment.Cancelled = true
	}
	recomputePaidAmount(s)
	return nil
}
