package archive

import "gorm.io/gorm"

// GetArchivedOrder looks up the summary row for a previously archived
// order, used by reprint/dispute lookups once the live snapshot is gone.
func (s *Store) GetArchivedOrder(orderID string) (*ArchivedOrder, error) {
	var row ArchivedOrder
	err := s.db.Where("order_id = ?", orderID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ItemsForOrder returns the archived line items for orderID.
func (s *Store) ItemsForOrder(orderID string) ([]OrderItem, error) {
	var rows []OrderItem
	err := s.db.Where("order_id = ?", orderID).Find(&rows).Error
	return rows, err
}

// PaymentsForOrder returns the archived (non-cancelled) payments for orderID.
func (s *Store) PaymentsForOrder(orderID string) ([]OrderPayment, error) {
	var rows []OrderPayment
	err := s.db.Where("order_id = ?", orderID).Find(&rows).Error
	return rows, err
}

// EventsForOrder returns the flattened event log for orderID, ordered by
// sequence.
func (s *Store) EventsForOrder(orderID string) ([]OrderEvent, error) {
	var rows []OrderEvent
	err := s.db.Where("order_id = ?", orderID).Order("sequence asc").Find(&rows).Error
	return rows, err
}

// GetShift returns operatorID's current expected-cash tracking row, or nil
// if the operator has never had a cash payment archived.
func (s *Store) GetShift(operatorID string) (*Shift, error) {
	var row Shift
	err := s.db.Where("operator_id = ?", operatorID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// RecentAuditLogs returns the most recent audit entries, newest first.
func (s *Store) RecentAuditLogs(limit int) ([]AuditLog, error) {
	var rows []AuditLog
	err := s.db.Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}
