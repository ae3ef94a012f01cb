package archive

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/storage"
)

// Retry/concurrency tuning (spec §4.5 "Retry schedule"): exponential
// backoff base 5s capped at 60s, dead-letter after 3 failed attempts,
// periodic rescan every 60s, at most 10 archives in flight.
const (
	MaxRetryCount       = 3
	RetryBaseDelay      = 5 * time.Second
	RetryMaxDelay       = 60 * time.Second
	DefaultScanInterval = 60 * time.Second
	DefaultConcurrency  = 10
)

// Worker drains storage's pending_archive queue into the SQL archive,
// adapted from the teacher's trading engine's own background-loop shape
// (core/engine.go's ticker-driven positionMonitorLoop) but bounded by a
// weighted semaphore instead of running unboundedly, grounded on
// original_source/edge-server/src/orders/archive_worker.rs.
type Worker struct {
	orders  *storage.Store
	archive *Store
	sem     *semaphore.Weighted

	scanInterval time.Duration
}

// NewWorker wires a Worker over the live order store and the SQL archive
// store. concurrency <= 0 falls back to DefaultConcurrency.
func NewWorker(orders *storage.Store, archive *Store, concurrency int64) *Worker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Worker{
		orders:       orders,
		archive:      archive,
		sem:          semaphore.NewWeighted(concurrency),
		scanInterval: DefaultScanInterval,
	}
}

// Run blocks, periodically scanning pending_archive until ctx is cancelled.
// Boot recovery (moving dead letters back to pending) happens once before
// the first scan, matching spec §4.4's "on boot ... move dead-letter items
// back to pending".
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.recoverDeadLetters(); err != nil {
		log.Error().Err(err).Msg("archive worker: failed to recover dead letters")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("archive worker: recovered dead letters to pending queue")
	}

	w.ScanOnce(ctx)

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("archive worker: stopping")
			return
		case <-ticker.C:
			w.ScanOnce(ctx)
		}
	}
}

func (w *Worker) recoverDeadLetters() (int, error) {
	var n int
	err := w.orders.Update(func(tx *storage.Tx) error {
		count, err := tx.RecoverAllDeadLetters()
		n = count
		return err
	})
	return n, err
}

// ScanOnce processes every order in pending_archive whose backoff has
// elapsed, bounding in-flight work with the worker's semaphore (spec §4.5
// "a bounded semaphore limits in-flight archives").
func (w *Worker) ScanOnce(ctx context.Context) {
	var pending []storage.PendingArchive
	err := w.orders.View(func(tx *storage.Tx) error {
		p, err := tx.GetPendingArchives()
		pending = p
		return err
	})
	if err != nil {
		log.Error().Err(err).Msg("archive worker: failed to list pending archives")
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Info().Int("count", len(pending)).Msg("archive worker: processing pending queue")
	for _, entry := range pending {
		if entry.Attempts >= MaxRetryCount {
			w.deadLetter(entry)
			continue
		}
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(orderID string) {
			defer w.sem.Release(1)
			w.processOrder(orderID)
		}(entry.OrderID)
	}
}

func (w *Worker) deadLetter(entry storage.PendingArchive) {
	log.Error().Str("order_id", entry.OrderID).Int("attempts", entry.Attempts).
		Str("last_error", entry.LastError).Msg("archive worker: max retries exceeded, moving to dead letter")
	err := w.orders.Update(func(tx *storage.Tx) error {
		return tx.MoveToDeadLetter(entry.OrderID, entry.LastError, entry.Attempts)
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", entry.OrderID).Msg("archive worker: failed to move to dead letter")
	}
}

// processOrder runs the body of spec §4.5: load, archive to SQL, update
// shift cash, write the audit log, then clean up the live store — or
// record the failure and leave the entry in pending for the next scan.
func (w *Worker) processOrder(orderID string) {
	var (
		snapshot *orderpb.OrderSnapshot
		events   []*orderpb.OrderEvent
	)
	err := w.orders.View(func(tx *storage.Tx) error {
		s, err := tx.GetSnapshot(orderID)
		if err != nil {
			return err
		}
		snapshot = s
		if s == nil {
			return nil
		}
		evs, err := tx.EventsForOrder(orderID)
		events = evs
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("archive worker: failed to load order data")
		return
	}
	if snapshot == nil {
		log.Warn().Str("order_id", orderID).Msg("archive worker: snapshot missing, dropping from queue")
		_ = w.orders.Update(func(tx *storage.Tx) error { return tx.CompleteArchive(orderID) })
		return
	}

	operatorID, operatorName := terminalOperator(events)

	if err := w.archive.ArchiveOrder(snapshot, events, operatorID, operatorName); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("archive worker: archive failed")
		w.markFailed(orderID, err)
		return
	}
	log.Info().Str("order_id", orderID).Msg("archive worker: order archived")

	w.updateShiftCash(snapshot, operatorID)
	w.writeOrderAudit(snapshot, events, operatorID, operatorName)

	if err := w.orders.Update(func(tx *storage.Tx) error { return tx.CompleteArchive(orderID) }); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("archive worker: failed to clean up live store")
	}
}

func (w *Worker) markFailed(orderID string, cause error) {
	err := w.orders.Update(func(tx *storage.Tx) error {
		attempts, found, err := tx.PendingArchiveAttempts(orderID)
		if err != nil {
			return err
		}
		if !found {
			attempts = 0
		}
		delay := RetryBaseDelay * (1 << attempts)
		if delay > RetryMaxDelay {
			delay = RetryMaxDelay
		}
		return tx.MarkArchiveFailed(orderID, cause.Error(), delay)
	})
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("archive worker: failed to record archive failure")
	}
}

// terminalOperator extracts the operator that triggered the terminal event,
// searched from the end since it is always the last event appended.
func terminalOperator(events []*orderpb.OrderEvent) (id, name string) {
	for i := len(events) - 1; i >= 0; i-- {
		if orderpb.TerminalEventTypes[events[i].EventType] {
			return events[i].OperatorID, events[i].OperatorName
		}
	}
	return "", ""
}

// updateShiftCash implements spec §4.5 step 3: cash payments bump the
// operator's expected-cash total, except for CANCELLED voids where no
// money actually changed hands (LossSettled voids still count).
func (w *Worker) updateShiftCash(snapshot *orderpb.OrderSnapshot, operatorID string) {
	if snapshot.Status == orderpb.StatusVoid && snapshot.VoidReason == orderpb.VoidCancelled {
		return
	}
	if operatorID == "" {
		return
	}

	var cashTotal float64
	for _, p := range snapshot.Payments {
		if !p.Cancelled && p.Method == "CASH" {
			cashTotal += p.Amount
		}
	}
	if cashTotal <= 0 {
		return
	}

	if err := w.archive.AddCashPayment(operatorID, cashTotal); err != nil {
		log.Warn().Err(err).Str("order_id", snapshot.OrderID).Str("operator_id", operatorID).
			Msg("archive worker: failed to update shift cash")
	}
}

// writeOrderAudit implements spec §4.5 step 4: one AuditLog row per
// terminal event, tagged with the action that produced it.
func (w *Worker) writeOrderAudit(snapshot *orderpb.OrderSnapshot, events []*orderpb.OrderEvent, operatorID, operatorName string) {
	var terminal *orderpb.OrderEvent
	for i := len(events) - 1; i >= 0; i-- {
		if orderpb.TerminalEventTypes[events[i].EventType] {
			terminal = events[i]
			break
		}
	}
	if terminal == nil {
		return
	}

	action := string(terminal.EventType)
	entry := AuditLog{
		Action:       action,
		ResourceType: "order",
		ResourceID:   "order:" + snapshot.OrderID,
		OperatorID:   operatorID,
		OperatorName: operatorName,
	}
	if err := w.archive.WriteAuditLog(entry); err != nil {
		log.Warn().Err(err).Str("order_id", snapshot.OrderID).Msg("archive worker: failed to write audit log")
	}
}
