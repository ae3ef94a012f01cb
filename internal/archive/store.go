package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/crabpos/edge/internal/orderpb"
)

// detailRetention is how long an OrderDetail row is kept relevant for
// (spec §4.5 step 2's "30-day detail JSON blob"); pruning past
// ExpiresAt is left to an operator-run cleanup job, same as the teacher's
// own CleanOldWindowPrices being a separate, explicitly invoked method
// rather than a background timer.
const detailRetention = 30 * 24 * time.Hour

// Store owns the gorm handle for the SQL archive (spec §4.5, §9 "SQL
// archive"). It picks postgres when the dsn looks like a connection URL
// and falls back to an embedded sqlite file otherwise, exactly as
// internal/database/database.go's New does for the trading database.
type Store struct {
	db *gorm.DB
}

// Open connects (creating the sqlite file if needed) and migrates every
// archive table.
func Open(dsn string) (*Store, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("archive: open postgres: %w", err)
		}
		log.Info().Msg("archive store connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("archive: create dir %s: %w", dir, err)
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("archive: open sqlite: %w", err)
		}
		log.Info().Str("path", dsn).Msg("archive store initialized (sqlite)")
	}

	if err := db.AutoMigrate(
		&ArchivedOrder{}, &OrderItem{}, &OrderPayment{}, &OrderEvent{},
		&OrderDetail{}, &AuditLog{}, &Shift{},
	); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// ArchiveOrder writes the full archive row set for one terminal order in a
// single SQL transaction (spec §4.5 step 2), keyed so a retried archive
// overwrites rather than duplicates (Save-by-primary-key for the summary
// and detail rows, delete-then-insert for the item/payment/event rows).
func (s *Store) ArchiveOrder(snapshot *orderpb.OrderSnapshot, events []*orderpb.OrderEvent, operatorID, operatorName string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		summary := ArchivedOrder{
			OrderID:        snapshot.OrderID,
			TableID:        snapshot.TableID,
			ZoneID:         snapshot.ZoneID,
			IsRetail:       snapshot.IsRetail,
			GuestCount:     snapshot.GuestCount,
			ReceiptNumber:  snapshot.ReceiptNumber,
			Status:         string(snapshot.Status),
			VoidReason:     string(snapshot.VoidReason),
			Subtotal:       snapshot.Subtotal,
			Discount:       snapshot.Discount,
			TotalSurcharge: snapshot.TotalSurcharge,
			Tax:            snapshot.Tax,
			Total:          snapshot.Total,
			PaidAmount:     snapshot.PaidAmount,
			OperatorID:     operatorID,
			OperatorName:   operatorName,
			ArchivedAt:     time.Now(),
			CreatedAt:      snapshot.UpdatedAt,
		}
		if err := tx.Save(&summary).Error; err != nil {
			return fmt.Errorf("save archived_order: %w", err)
		}

		if err := tx.Where("order_id = ?", snapshot.OrderID).Delete(&OrderItem{}).Error; err != nil {
			return err
		}
		for _, item := range snapshot.Items {
			row := OrderItem{
				OrderID: snapshot.OrderID, InstanceID: item.InstanceID,
				ProductID: item.ProductID, Name: item.Name, Quantity: item.Quantity,
				UnitPrice: item.UnitPrice, LineTotal: item.LineTotal,
				TaxRate: item.TaxRate, Tax: item.Tax, IsComped: item.IsComped,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("save order_item: %w", err)
			}
		}

		if err := tx.Where("order_id = ?", snapshot.OrderID).Delete(&OrderPayment{}).Error; err != nil {
			return err
		}
		for _, p := range snapshot.Payments {
			if p.Cancelled {
				continue
			}
			row := OrderPayment{
				OrderID: snapshot.OrderID, PaymentID: p.ID, Method: p.Method,
				Amount: p.Amount, CreatedAt: p.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("save order_payment: %w", err)
			}
		}

		if err := tx.Where("order_id = ?", snapshot.OrderID).Delete(&OrderEvent{}).Error; err != nil {
			return err
		}
		for _, ev := range events {
			row := OrderEvent{
				OrderID: ev.OrderID, EventID: ev.EventID, Sequence: ev.Sequence,
				EventType: string(ev.EventType), OperatorID: ev.OperatorID,
				OperatorName: ev.OperatorName, Payload: string(ev.Payload), Timestamp: ev.Timestamp,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("save order_event: %w", err)
			}
		}

		detailJSON, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("marshal order detail: %w", err)
		}
		detail := OrderDetail{
			OrderID: snapshot.OrderID, DetailJSON: string(detailJSON),
			ExpiresAt: time.Now().Add(detailRetention),
		}
		if err := tx.Save(&detail).Error; err != nil {
			return fmt.Errorf("save order_detail: %w", err)
		}

		return nil
	})
}

// AddCashPayment increments operatorID's running expected-cash total
// (spec §4.5 step 3).
func (s *Store) AddCashPayment(operatorID string, amount float64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var shift Shift
		err := tx.Where("operator_id = ?", operatorID).First(&shift).Error
		switch {
		case err == gorm.ErrRecordNotFound:
			shift = Shift{OperatorID: operatorID, ExpectedCash: amount, OpenedAt: time.Now(), UpdatedAt: time.Now()}
			return tx.Create(&shift).Error
		case err != nil:
			return err
		default:
			shift.ExpectedCash += amount
			shift.UpdatedAt = time.Now()
			return tx.Save(&shift).Error
		}
	})
}

// WriteAuditLog appends one administrative event row.
func (s *Store) WriteAuditLog(entry AuditLog) error {
	entry.CreatedAt = time.Now()
	return s.db.Create(&entry).Error
}
