// Package ordersmgr is the orchestrator described in spec §4.4: it owns
// per-order serializability, the runtime pricing-rule cache, and the
// load→validate→apply→persist→broadcast pipeline that every command goes
// through. It adapts the mutex-guarded Start/Stop shape and the
// subscribe/broadcast routing of this module's original trading engine
// onto the order state machine instead of market ticks.
package ordersmgr

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/crabpos/edge/internal/appliers"
	"github.com/crabpos/edge/internal/commands"
	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/pricing"
	"github.com/crabpos/edge/internal/storage"
	"github.com/crabpos/edge/pkg/idgen"
)

// Broadcaster publishes committed events after a transaction commits (spec
// §4.4 step 7's "broadcast events on the internal bus"). The bus/cloudsync
// packages supply the real implementation; ordersmgr only depends on this
// interface so it never imports the transport layer.
type Broadcaster interface {
	Broadcast(events []*orderpb.OrderEvent)
}

// BroadcastFunc adapts a plain function to Broadcaster.
type BroadcastFunc func(events []*orderpb.OrderEvent)

func (f BroadcastFunc) Broadcast(events []*orderpb.OrderEvent) { f(events) }

// Manager is the orchestrator (spec §4.4): one instance per node, owning the
// storage handle, the per-order lock table, and the in-memory rule cache.
type Manager struct {
	store *storage.Store
	bus   Broadcaster

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	rulesMu sync.RWMutex
	rules   map[string][]orderpb.PriceRule
}

// New constructs a Manager over an already-open Store. bus may be nil, in
// which case committed events are simply dropped after persistence (useful
// for tests that only care about storage/state).
func New(store *storage.Store, bus Broadcaster) *Manager {
	if bus == nil {
		bus = BroadcastFunc(func([]*orderpb.OrderEvent) {})
	}
	return &Manager{
		store: store,
		bus:   bus,
		locks: make(map[string]*sync.Mutex),
		rules: make(map[string][]orderpb.PriceRule),
	}
}

// lockFor returns the mutex guarding orderID, creating it on first use
// (spec §4.4 step 2: "per-order async mutex map, created on demand").
func (m *Manager) lockFor(orderID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[orderID] = l
	}
	return l
}

// SetRules installs the price rules an order should resolve against,
// called whenever a rule snapshot changes for that order's zone (spec
// §4.4's rule cache).
func (m *Manager) SetRules(orderID string, rules []orderpb.PriceRule) {
	m.rulesMu.Lock()
	defer m.rulesMu.Unlock()
	m.rules[orderID] = rules
}

func (m *Manager) rulesFor(orderID string) []orderpb.PriceRule {
	m.rulesMu.RLock()
	defer m.rulesMu.RUnlock()
	return m.rules[orderID]
}

func (m *Manager) dropRules(orderID string) {
	m.rulesMu.Lock()
	defer m.rulesMu.Unlock()
	delete(m.rules, orderID)
}

// Result is returned on a successful command.
type Result struct {
	OrderID      string
	LastSequence uint64
	Events       []*orderpb.OrderEvent
}

// ExecuteCommand runs the 8-step protocol of spec §4.4. For OpenTable,
// cmd.OrderID is allocated here if the caller left it blank.
func (m *Manager) ExecuteCommand(cmd *orderpb.OrderCommand) (*Result, error) {
	if cmd.Type == orderpb.CmdOpenTable && cmd.OrderID == "" {
		cmd.OrderID = idgen.NewID()
	}
	if cmd.OrderID == "" {
		return nil, fmt.Errorf("ordersmgr: command %s carries no order_id", cmd.Type)
	}

	lock := m.lockFor(cmd.OrderID)
	lock.Lock()
	defer lock.Unlock()

	var (
		committedEvents []*orderpb.OrderEvent
		lastSeq         uint64
		terminal        bool
		secondOrderID   string
		replayed        bool
	)

	err := m.store.Update(func(tx *storage.Tx) error {
		if cmd.CommandID != "" {
			entry, found, err := tx.LookupCommand(cmd.CommandID)
			if err != nil {
				return err
			}
			if found {
				var replay Result
				if err := json.Unmarshal(entry.Result, &replay); err != nil {
					return fmt.Errorf("ordersmgr: unmarshal replayed result for %s: %w", cmd.CommandID, err)
				}
				committedEvents = replay.Events
				lastSeq = replay.LastSequence
				replayed = true
				return nil
			}
		}

		snapshot, err := tx.GetSnapshot(cmd.OrderID)
		if err != nil {
			return err
		}
		if snapshot == nil && cmd.Type == orderpb.CmdOpenTable {
			snapshot = orderpb.NewOrderSnapshot(cmd.OrderID)
		}

		ctx := &commands.CommandContext{
			Tx:      tx,
			NextSeq: func() (uint64, error) { return tx.NextSequence(cmd.OrderID) },
			Now:     cmd.Timestamp,
			Rules:   pricing.FilterTimeValid(m.rulesFor(cmd.OrderID), cmd.Timestamp),
		}

		events, handleErr := commands.Handle(snapshot, cmd, ctx)
		if handleErr != nil {
			return handleErr
		}

		targets := map[string]*orderpb.OrderSnapshot{cmd.OrderID: snapshot}
		for _, ev := range events {
			target, ok := targets[ev.OrderID]
			if !ok {
				loaded, err := tx.GetSnapshot(ev.OrderID)
				if err != nil {
					return err
				}
				target = loaded
				targets[ev.OrderID] = target
				secondOrderID = ev.OrderID
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

			if ev.EventType == orderpb.EventOrderMoved {
				var p orderpb.PayloadOrderMoved
				if err := json.Unmarshal(ev.Payload, &p); err != nil {
					return fmt.Errorf("ordersmgr: decode OrderMoved payload for %s: %w", ev.OrderID, err)
				}
				if err := tx.MoveOrderActiveTable(ev.OrderID, p.FromTableID, p.ToTableID); err != nil {
					return err
				}
			}

			if orderpb.TerminalEventTypes[ev.EventType] {
				if err := finalizeTerminal(tx, target.OrderID); err != nil {
					return err
				}
				terminal = true
			}
		}

		if cmd.Type == orderpb.CmdOpenTable {
			p := cmd.Payload.(orderpb.OpenTablePayload)
			if err := tx.MarkOrderActive(cmd.OrderID, p.TableID); err != nil {
				return err
			}
		}

		committedEvents = events
		if len(events) > 0 {
			lastSeq = events[len(events)-1].Sequence
		}

		if cmd.CommandID != "" {
			raw, err := json.Marshal(Result{OrderID: cmd.OrderID, LastSequence: lastSeq, Events: committedEvents})
			if err != nil {
				return fmt.Errorf("ordersmgr: marshal result for ledger: %w", err)
			}
			if err := tx.RecordCommand(cmd.CommandID, cmd.OrderID, raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		return &Result{OrderID: cmd.OrderID, LastSequence: lastSeq, Events: committedEvents}, nil
	}

	if terminal {
		m.dropRules(cmd.OrderID)
		if secondOrderID != "" {
			m.dropRules(secondOrderID)
		}
	}

	m.bus.Broadcast(committedEvents)

	return &Result{OrderID: cmd.OrderID, LastSequence: lastSeq, Events: committedEvents}, nil
}

// finalizeTerminal implements the terminal-event branch of spec §4.4 step
// 7: remove the order from the live indexes and enqueue it for archival.
// The snapshot and event log are left in place — the archive worker still
// needs them to build the SQL rows, and only deletes them once the SQL
// write has actually committed (spec §4.5 step 5, storage.CompleteArchive).
func finalizeTerminal(tx *storage.Tx, orderID string) error {
	if err := tx.MarkOrderInactive(orderID); err != nil {
		return err
	}
	return tx.EnqueuePendingArchive(orderID)
}

// Recover implements spec §4.4's boot recovery: rebuild the rule cache for
// every still-active order and move dead-letters back to pending so the
// archive worker retries them.
func (m *Manager) Recover(loadRules func(orderID string) ([]orderpb.PriceRule, error)) error {
	var activeIDs []string
	err := m.store.View(func(tx *storage.Tx) error {
		ids, err := tx.ActiveOrderIDs()
		if err != nil {
			return err
		}
		activeIDs = ids
		return nil
	})
	if err != nil {
		return err
	}

	for _, orderID := range activeIDs {
		rules, err := loadRules(orderID)
		if err != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("failed to reload rule cache on recovery")
			continue
		}
		m.SetRules(orderID, rules)
	}

	var recovered int
	err = m.store.Update(func(tx *storage.Tx) error {
		n, err := tx.RecoverAllDeadLetters()
		recovered = n
		return err
	})
	if err != nil {
		return err
	}
	if recovered > 0 {
		log.Info().Int("count", recovered).Msg("moved dead-lettered orders back to pending archive")
	}

	log.Info().Int("active_orders", len(activeIDs)).Msg("ordersmgr recovery complete")
	return nil
}
