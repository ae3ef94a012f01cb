// Package storage is the transactional embedded key-value layer every order
// mutation goes through. It wraps go.etcd.io/bbolt: one file, several named
// buckets, ACID transactions — the durability boundary the order engine
// commits across (spec §4.1, §9 "Storage engine").
//
// bbolt was not part of the teacher's stack; no example repo in the pack
// ships an embedded transactional KV engine suitable for a single-process
// edge node (see DESIGN.md "Domain stack" for the full reasoning). Its use
// here is deliberately narrow: one bolt.DB, opened once, closed once.
package storage

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names. Every bucket the engine touches is created up front in
// Open so writers never need to check-and-create inside a transaction.
var (
	BucketSnapshots     = []byte("snapshots")
	BucketEvents        = []byte("events")
	BucketEventsByOrder = []byte("events_by_order")
	BucketActiveOrders  = []byte("active_orders")
	BucketTableIndex    = []byte("table_index")
	BucketSequence      = []byte("sequence_counter")
	BucketPendingArchive = []byte("pending_archive")
	BucketDeadLetter    = []byte("dead_letter")
	BucketRuleSnapshots = []byte("rule_snapshots")
	BucketCommandLedger = []byte("command_ledger")
)

var allBuckets = [][]byte{
	BucketSnapshots,
	BucketEvents,
	BucketEventsByOrder,
	BucketActiveOrders,
	BucketTableIndex,
	BucketSequence,
	BucketPendingArchive,
	BucketDeadLetter,
	BucketRuleSnapshots,
	BucketCommandLedger,
}

// Store owns the single bolt.DB handle for an edge node's lifetime.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bolt file at path and ensures every
// bucket the engine needs exists. Callers must call Close on shutdown.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the file lock on the bolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a single read-write bolt transaction, handed to command handlers and
// appliers as the unit of atomicity for one OrderCommand (spec §4.4 step 5:
// "append events and store snapshot in one storage transaction").
type Tx struct {
	tx *bbolt.Tx
}

// Update runs fn inside a read-write transaction. If fn returns an error the
// whole transaction is rolled back — no partial event append, no partial
// snapshot write.
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

// View runs fn inside a read-only transaction.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx})
	})
}

func (t *Tx) bucket(name []byte) *bbolt.Bucket {
	return t.tx.Bucket(name)
}
