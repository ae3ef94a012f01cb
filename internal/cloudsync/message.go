// Package cloudsync implements spec §4.9: the duplex WebSocket channel
// between an edge node and the cloud — resumable cursor-based change
// upload, at-least-once command delivery, RPC correlation, and live
// order streaming. Grounded on
// original_source/crab-cloud/src/api/ws.rs (cloud-side connection
// handler) and original_source/crab-client/src/client/message.rs
// (edge-side connect/handshake shape), transported with
// github.com/gorilla/websocket as the teacher's feeds/polymarket_ws.go
// already does for its own duplex feed.
package cloudsync

import "encoding/json"

// MessageType discriminates a CloudMessage's JSON "type" tag (spec §6
// "Wire: CloudMessage ... externally-tagged discriminator `type`").
type MessageType string

const (
	TypeWelcome             MessageType = "Welcome"
	TypeRpc                 MessageType = "Rpc"
	TypeCommand             MessageType = "Command"
	TypeSyncBatch           MessageType = "SyncBatch"
	TypeSyncAck             MessageType = "SyncAck"
	TypeCommandResult       MessageType = "CommandResult"
	TypeRpcResult           MessageType = "RpcResult"
	TypeActiveOrderSnapshot MessageType = "ActiveOrderSnapshot"
	TypeActiveOrderRemoved  MessageType = "ActiveOrderRemoved"
)

// CloudMessage is the externally-tagged envelope every frame is encoded
// as. Only the fields relevant to Type are populated; unused fields are
// omitted from the wire via `omitempty`, mirroring serde's externally
// tagged enum encoding.
type CloudMessage struct {
	Type MessageType `json:"type"`

	// Welcome
	Cursors map[string]int64 `json:"cursors,omitempty"`

	// Rpc / RpcResult
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`

	// Command (persistent, cloud -> edge)
	Command *CloudCommand `json:"command,omitempty"`

	// SyncBatch
	Items           []SyncItem       `json:"items,omitempty"`
	CommandResults  []CommandResult  `json:"command_results,omitempty"`

	// SyncAck
	Accepted uint32           `json:"accepted,omitempty"`
	Rejected uint32           `json:"rejected,omitempty"`
	Errors   []CloudSyncError `json:"errors,omitempty"`

	// CommandResult (edge -> cloud, batch of results)
	Results []CommandResult `json:"results,omitempty"`

	// ActiveOrderSnapshot / ActiveOrderRemoved
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Events   json.RawMessage `json:"events,omitempty"`
	OrderID  string          `json:"order_id,omitempty"`
}

// CloudCommand is a persistent command the cloud has queued for an edge
// (spec §4.9 "Command delivery").
type CloudCommand struct {
	ID          string          `json:"id"`
	CommandType string          `json:"command_type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   int64           `json:"created_at"`
}

// SyncItem is one changed resource row in a SyncBatch (spec §6 wire
// example).
type SyncItem struct {
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id"`
	Action     string          `json:"action"` // "upsert" | "delete"
	Data       json.RawMessage `json:"data,omitempty"`
	Version    int64           `json:"version"`
}

// CloudSyncError reports why SyncItem at Index was rejected (spec §4.9
// "SyncAck { accepted, rejected, errors[] }").
type CloudSyncError struct {
	Index      uint32 `json:"index"`
	ResourceID string `json:"resource_id"`
	Message    string `json:"message"`
}

// CommandResult reports the outcome of a command (whether delivered
// persistently or dispatched on-demand via Rpc), keyed by CommandID so
// at-least-once redelivery can be deduplicated on receipt.
type CommandResult struct {
	CommandID string          `json:"command_id"`
	Success   bool            `json:"success"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewWelcome builds a Welcome frame.
func NewWelcome(cursors map[string]int64) CloudMessage {
	return CloudMessage{Type: TypeWelcome, Cursors: cursors}
}

// NewSyncBatch builds the edge's periodic upload frame.
func NewSyncBatch(items []SyncItem, results []CommandResult) CloudMessage {
	return CloudMessage{Type: TypeSyncBatch, Items: items, CommandResults: results}
}

// NewSyncAck builds the cloud's per-batch acknowledgement.
func NewSyncAck(accepted, rejected uint32, errs []CloudSyncError) CloudMessage {
	return CloudMessage{Type: TypeSyncAck, Accepted: accepted, Rejected: rejected, Errors: errs}
}

// NewRpc builds a cloud-to-edge RPC request frame.
func NewRpc(id string, payload json.RawMessage) CloudMessage {
	return CloudMessage{Type: TypeRpc, ID: id, Payload: payload}
}

// NewRpcResult builds the edge's reply to an Rpc, correlated by id.
func NewRpcResult(id string, result json.RawMessage) CloudMessage {
	return CloudMessage{Type: TypeRpcResult, ID: id, Result: result}
}

// NewCommand builds a persistent cloud-queued command frame.
func NewCommand(cmd CloudCommand) CloudMessage {
	return CloudMessage{Type: TypeCommand, Command: &cmd}
}

// NewCommandResult builds the edge's result-reporting frame.
func NewCommandResult(results []CommandResult) CloudMessage {
	return CloudMessage{Type: TypeCommandResult, Results: results}
}

// NewActiveOrderSnapshot builds a live-console streaming frame.
func NewActiveOrderSnapshot(snapshot, events json.RawMessage) CloudMessage {
	return CloudMessage{Type: TypeActiveOrderSnapshot, Snapshot: snapshot, Events: events}
}

// NewActiveOrderRemoved builds the counterpart teardown frame.
func NewActiveOrderRemoved(orderID string) CloudMessage {
	return CloudMessage{Type: TypeActiveOrderRemoved, OrderID: orderID}
}
