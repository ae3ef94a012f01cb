package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/crabpos/edge/internal/cloudsync"
)

// The stores in this file are minimal in-process stand-ins for
// cloudsync.Server's persistence interfaces. SPEC_FULL.md §5 scopes a
// concrete gorm-backed cloud store out (Non-goal: "no cloud-side
// analytics beyond the sync ingest path") — these exist only so
// cmd/cloud-server can run the protocol end to end; a real deployment
// swaps them for a durable implementation without touching cloudsync.

type memoryCursorStore struct {
	mu      sync.Mutex
	cursors map[string]map[string]int64
}

func newMemoryCursorStore() *memoryCursorStore {
	return &memoryCursorStore{cursors: make(map[string]map[string]int64)}
}

func (s *memoryCursorStore) GetCursors(ctx context.Context, edgeServerID string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.cursors[edgeServerID]))
	for k, v := range s.cursors[edgeServerID] {
		out[k] = v
	}
	return out, nil
}

func (s *memoryCursorStore) UpdateCursor(ctx context.Context, edgeServerID, resource string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byResource, ok := s.cursors[edgeServerID]
	if !ok {
		byResource = make(map[string]int64)
		s.cursors[edgeServerID] = byResource
	}
	if version > byResource[resource] {
		byResource[resource] = version
	}
	return nil
}

type memoryCommandQueue struct {
	mu        sync.Mutex
	pending   map[string][]cloudsync.CloudCommand
	delivered map[string]map[string]bool
}

func newMemoryCommandQueue() *memoryCommandQueue {
	return &memoryCommandQueue{
		pending:   make(map[string][]cloudsync.CloudCommand),
		delivered: make(map[string]map[string]bool),
	}
}

func (q *memoryCommandQueue) PendingCommands(ctx context.Context, edgeServerID string, limit int) ([]cloudsync.CloudCommand, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cmds := q.pending[edgeServerID]
	if limit > 0 && len(cmds) > limit {
		cmds = cmds[:limit]
	}
	out := make([]cloudsync.CloudCommand, len(cmds))
	copy(out, cmds)

	set, ok := q.delivered[edgeServerID]
	if !ok {
		set = make(map[string]bool)
		q.delivered[edgeServerID] = set
	}
	for _, c := range out {
		set[c.ID] = true
	}
	return out, nil
}

func (q *memoryCommandQueue) MarkDelivered(ctx context.Context, ids []string) error {
	return nil
}

func (q *memoryCommandQueue) CompleteCommands(ctx context.Context, results []cloudsync.CommandResult) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	done := make(map[string]bool, len(results))
	for _, r := range results {
		done[r.CommandID] = true
		if !r.Success {
			log.Warn().Str("command_id", r.CommandID).Str("error", r.Error).Msg("cloud-server: edge reported command failure")
		}
	}
	for edgeID, cmds := range q.pending {
		remaining := cmds[:0]
		for _, c := range cmds {
			if !done[c.ID] {
				remaining = append(remaining, c)
			}
		}
		q.pending[edgeID] = remaining
	}
	return nil
}

func (q *memoryCommandQueue) RollbackDelivered(ctx context.Context, edgeServerID string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	set := q.delivered[edgeServerID]
	delete(q.delivered, edgeServerID)
	return len(set), nil
}

type memoryResourceSink struct {
	mu          sync.Mutex
	resources   map[string]json.RawMessage
	provisioned map[string]bool
}

func newMemoryResourceSink() *memoryResourceSink {
	return &memoryResourceSink{
		resources:   make(map[string]json.RawMessage),
		provisioned: make(map[string]bool),
	}
}

func (s *memoryResourceSink) UpsertResource(ctx context.Context, edgeServerID, tenantID string, item cloudsync.SyncItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[edgeServerID+"/"+item.Resource+"/"+item.ResourceID] = item.Data
	s.provisioned[edgeServerID] = true
	return nil
}

func (s *memoryResourceSink) NeedsCatalogProvisioning(ctx context.Context, edgeServerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.provisioned[edgeServerID], nil
}

type memoryLiveSink struct{}

func newMemoryLiveSink() *memoryLiveSink { return &memoryLiveSink{} }

func (s *memoryLiveSink) PublishUpdate(tenantID, edgeServerID string, snapshot, events json.RawMessage) {
	log.Debug().Str("tenant_id", tenantID).Str("edge_server_id", edgeServerID).Msg("cloud-server: live order update")
}

func (s *memoryLiveSink) PublishRemove(tenantID, orderID, edgeServerID string) {
	log.Debug().Str("tenant_id", tenantID).Str("order_id", orderID).Msg("cloud-server: live order removed")
}
