package cloudsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// CursorStore persists per-(edge, resource) sync cursors with a
// monotonic MAX guard (spec §4.9 "Cursor semantics").
type CursorStore interface {
	GetCursors(ctx context.Context, edgeServerID string) (map[string]int64, error)
	UpdateCursor(ctx context.Context, edgeServerID, resource string, version int64) error
}

// CommandQueue persists commands queued for an edge with at-least-once
// delivery semantics (spec §4.9 "Command delivery").
type CommandQueue interface {
	PendingCommands(ctx context.Context, edgeServerID string, limit int) ([]CloudCommand, error)
	MarkDelivered(ctx context.Context, ids []string) error
	CompleteCommands(ctx context.Context, results []CommandResult) error
	RollbackDelivered(ctx context.Context, edgeServerID string) (int, error)
}

// ResourceSink applies an incoming SyncBatch item to cloud-side storage.
type ResourceSink interface {
	UpsertResource(ctx context.Context, edgeServerID, tenantID string, item SyncItem) error
	NeedsCatalogProvisioning(ctx context.Context, edgeServerID string) (bool, error)
}

// LiveOrderSink fans live order updates out to console subscribers.
type LiveOrderSink interface {
	PublishUpdate(tenantID, edgeServerID string, snapshot, events json.RawMessage)
	PublishRemove(tenantID, orderID, edgeServerID string)
}

// EdgeIdentity is the authenticated caller of a WS upgrade, populated by
// the surrounding mTLS/JWT middleware (spec §4.9 "Requires mTLS").
type EdgeIdentity struct {
	EdgeServerID string
	TenantID     string
	DeviceID     string
}

// edgeConn tracks one connected edge's outbound queue and pending
// RPCs, the Go analogue of the teacher's
// `state.connected_edges: DashMap<i64, mpsc::Sender<CloudMessage>>` plus
// `state.pending_rpcs: DashMap<String, oneshot::Sender<...>>`.
type edgeConn struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	pendingRPCs map[string]chan json.RawMessage
}

func newEdgeConn(conn *websocket.Conn) *edgeConn {
	return &edgeConn{conn: conn, pendingRPCs: make(map[string]chan json.RawMessage)}
}

func (e *edgeConn) send(msg CloudMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return e.conn.WriteMessage(websocket.TextMessage, raw)
}

// Server is the cloud side of spec §4.9's duplex channel, grounded on
// original_source/crab-cloud/src/api/ws.rs's handle_ws_connection /
// handle_edge_message.
type Server struct {
	upgrader websocket.Upgrader

	cursors CursorStore
	queue   CommandQueue
	sink    ResourceSink
	live    LiveOrderSink

	mu    sync.RWMutex
	edges map[string]*edgeConn
}

// NewServer builds a cloud sync server backed by the given persistence
// interfaces. Any may be nil to disable that concern in a test harness.
func NewServer(cursors CursorStore, queue CommandQueue, sink ResourceSink, live LiveOrderSink) *Server {
	return &Server{
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		cursors:  cursors,
		queue:    queue,
		sink:     sink,
		live:     live,
		edges:    make(map[string]*edgeConn),
	}
}

// ConnectedCount reports how many edges currently hold an open session.
func (s *Server) ConnectedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// HandleUpgrade implements `GET /api/edge/ws` (spec §6), upgrading the
// HTTP connection and running the duplex session until disconnect.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request, identity EdgeIdentity) error {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("cloudsync: upgrade: %w", err)
	}
	go s.serveEdge(conn, identity)
	return nil
}

func (s *Server) serveEdge(conn *websocket.Conn, identity EdgeIdentity) {
	defer conn.Close()
	ctx := context.Background()

	ec := newEdgeConn(conn)
	s.mu.Lock()
	s.edges[identity.EdgeServerID] = ec
	s.mu.Unlock()

	log.Info().Str("edge_server_id", identity.EdgeServerID).Str("tenant_id", identity.TenantID).Msg("cloudsync: edge connected")

	s.sendWelcome(ctx, ec, identity)
	s.maybeSendCatalogProvisioning(ctx, ec, identity)
	s.flushPendingCommands(ctx, ec, identity)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Info().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: edge disconnected")
			break
		}
		var msg CloudMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: invalid CloudMessage")
			continue
		}
		s.handleEdgeMessage(ctx, ec, identity, msg)
	}

	s.mu.Lock()
	delete(s.edges, identity.EdgeServerID)
	s.mu.Unlock()

	if s.queue != nil {
		if n, err := s.queue.RollbackDelivered(ctx, identity.EdgeServerID); err != nil {
			log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: rollback delivered commands failed")
		} else if n > 0 {
			log.Info().Str("edge_server_id", identity.EdgeServerID).Int("rolled_back", n).Msg("cloudsync: rolled back delivered commands to pending")
		}
	}
}

func (s *Server) sendWelcome(ctx context.Context, ec *edgeConn, identity EdgeIdentity) {
	if s.cursors == nil {
		return
	}
	cursors, err := s.cursors.GetCursors(ctx, identity.EdgeServerID)
	if err != nil {
		log.Error().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to load cursors for Welcome")
		return
	}
	if err := ec.send(NewWelcome(cursors)); err != nil {
		log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to send Welcome")
	}
}

// maybeSendCatalogProvisioning sends a FullSync catalog RPC on first
// connect (spec §4.9 "Initial provisioning").
func (s *Server) maybeSendCatalogProvisioning(ctx context.Context, ec *edgeConn, identity EdgeIdentity) {
	if s.sink == nil {
		return
	}
	needs, err := s.sink.NeedsCatalogProvisioning(ctx, identity.EdgeServerID)
	if err != nil {
		log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to check provisioning status")
		return
	}
	if !needs {
		return
	}
	log.Info().Str("edge_server_id", identity.EdgeServerID).Msg("cloudsync: edge needs catalog provisioning, sending FullSync")
	payload, _ := json.Marshal(map[string]interface{}{"CatalogOp": map[string]interface{}{"FullSync": map[string]interface{}{}}})
	if err := ec.send(NewRpc("provision-"+identity.EdgeServerID, payload)); err != nil {
		log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to send FullSync")
	}
}

// flushPendingCommands sends up to 10 queued commands immediately on
// connect (spec §4.9 "on connect the cloud reads pending commands ...
// and sends them in order, marking delivered").
func (s *Server) flushPendingCommands(ctx context.Context, ec *edgeConn, identity EdgeIdentity) {
	if s.queue == nil {
		return
	}
	pending, err := s.queue.PendingCommands(ctx, identity.EdgeServerID, 10)
	if err != nil || len(pending) == 0 {
		return
	}
	var sentIDs []string
	for _, cmd := range pending {
		if err := ec.send(NewCommand(cmd)); err != nil {
			break
		}
		sentIDs = append(sentIDs, cmd.ID)
	}
	if len(sentIDs) > 0 {
		if err := s.queue.MarkDelivered(ctx, sentIDs); err != nil {
			log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to mark commands delivered")
		}
	}
}

func (s *Server) handleEdgeMessage(ctx context.Context, ec *edgeConn, identity EdgeIdentity, msg CloudMessage) {
	switch msg.Type {
	case TypeSyncBatch:
		s.handleSyncBatch(ctx, ec, identity, msg)

	case TypeCommandResult:
		s.handleCommandResults(ctx, identity, msg.Results)

	case TypeRpcResult:
		ec.mu.Lock()
		ch, ok := ec.pendingRPCs[msg.ID]
		if ok {
			delete(ec.pendingRPCs, msg.ID)
		}
		ec.mu.Unlock()
		if ok {
			ch <- msg.Result
		} else {
			log.Warn().Str("rpc_id", msg.ID).Msg("cloudsync: RpcResult for unknown or expired request")
		}

	case TypeActiveOrderSnapshot:
		if s.live != nil {
			s.live.PublishUpdate(identity.TenantID, identity.EdgeServerID, msg.Snapshot, msg.Events)
		}

	case TypeActiveOrderRemoved:
		if s.live != nil {
			s.live.PublishRemove(identity.TenantID, msg.OrderID, identity.EdgeServerID)
		}

	default:
		log.Debug().Str("type", string(msg.Type)).Msg("cloudsync: ignoring unexpected CloudMessage from edge")
	}
}

func (s *Server) handleSyncBatch(ctx context.Context, ec *edgeConn, identity EdgeIdentity, msg CloudMessage) {
	if len(msg.CommandResults) > 0 {
		s.handleCommandResults(ctx, identity, msg.CommandResults)
	}

	var accepted, rejected uint32
	var errs []CloudSyncError
	for idx, item := range msg.Items {
		if s.sink == nil {
			continue
		}
		if err := s.sink.UpsertResource(ctx, identity.EdgeServerID, identity.TenantID, item); err != nil {
			rejected++
			errs = append(errs, CloudSyncError{Index: uint32(idx), ResourceID: item.ResourceID, Message: err.Error()})
			continue
		}
		accepted++
		if s.cursors != nil {
			if err := s.cursors.UpdateCursor(ctx, identity.EdgeServerID, item.Resource, item.Version); err != nil {
				log.Warn().Str("resource", item.Resource).Err(err).Msg("cloudsync: failed to update sync cursor")
			}
		}
	}

	if err := ec.send(NewSyncAck(accepted, rejected, errs)); err != nil {
		log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to send SyncAck")
	}
	log.Info().Str("edge_server_id", identity.EdgeServerID).Uint32("accepted", accepted).Uint32("rejected", rejected).Msg("cloudsync: sync batch processed")
}

func (s *Server) handleCommandResults(ctx context.Context, identity EdgeIdentity, results []CommandResult) {
	if len(results) == 0 || s.queue == nil {
		return
	}
	if err := s.queue.CompleteCommands(ctx, results); err != nil {
		log.Warn().Str("edge_server_id", identity.EdgeServerID).Err(err).Msg("cloudsync: failed to process command results")
	}
}

// DispatchRPC sends an Rpc to a connected edge and blocks until its
// RpcResult arrives or ctx is cancelled (spec §4.9 "RPC: the cloud
// tracks pending_rpcs[id] -> oneshot_sender").
func (s *Server) DispatchRPC(ctx context.Context, edgeServerID, id string, payload json.RawMessage) (json.RawMessage, error) {
	s.mu.RLock()
	ec, ok := s.edges[edgeServerID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("cloudsync: edge %s is not connected", edgeServerID)
	}

	result := make(chan json.RawMessage, 1)
	ec.mu.Lock()
	ec.pendingRPCs[id] = result
	ec.mu.Unlock()

	if err := ec.send(NewRpc(id, payload)); err != nil {
		ec.mu.Lock()
		delete(ec.pendingRPCs, id)
		ec.mu.Unlock()
		return nil, fmt.Errorf("cloudsync: send rpc: %w", err)
	}

	select {
	case r := <-result:
		return r, nil
	case <-ctx.Done():
		ec.mu.Lock()
		delete(ec.pendingRPCs, id)
		ec.mu.Unlock()
		return nil, ctx.Err()
	}
}
