package cloudsync

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// reconnectDelay and pingInterval mirror the teacher's
// feeds/polymarket_ws.go reconnect-loop constants, reused here for the
// edge's cloud connection instead of a market-data feed.
const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// RpcHandler answers a cloud-initiated Rpc call and returns the JSON
// result to send back as RpcResult.
type RpcHandler func(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error)

// CommandHandler executes a cloud-queued persistent Command and returns
// its outcome.
type CommandHandler func(ctx context.Context, cmd CloudCommand) CommandResult

// Client is the edge-side duplex WebSocket connection to the cloud
// (spec §4.9). It reconnects on disconnect the way
// feeds.PolymarketFeed.connectionLoop does, replacing the reconnect
// delay's orderbook feed with cursor-based sync state.
type Client struct {
	url       string
	tlsConfig *tls.Config

	onRpc     RpcHandler
	onCommand CommandHandler

	mu        sync.Mutex
	conn      *websocket.Conn
	cursors   map[string]int64
	pending   map[string]chan json.RawMessage // rpc id -> result channel (edge-initiated, ephemeral)
	connected bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewClient builds a cloud sync client targeting wsURL (e.g.
// "wss://cloud.example.com/api/edge/ws") over tlsConfig.
func NewClient(wsURL string, tlsConfig *tls.Config, onRpc RpcHandler, onCommand CommandHandler) *Client {
	return &Client{
		url:       wsURL,
		tlsConfig: tlsConfig,
		onRpc:     onRpc,
		onCommand: onCommand,
		cursors:   make(map[string]int64),
		pending:   make(map[string]chan json.RawMessage),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the reconnect loop in the background. Call Stop to tear
// it down.
func (c *Client) Start() {
	go c.connectionLoop()
}

// Stop closes the current connection and halts reconnection.
func (c *Client) Stop() {
	close(c.stopCh)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.doneCh
}

// Connected reports whether a session is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Cursor returns the last_version the cloud acknowledged for resource,
// as delivered by the most recent Welcome frame.
func (c *Client) Cursor(resource string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursors[resource]
}

func (c *Client) connectionLoop() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if err := c.connectAndServe(); err != nil {
			log.Error().Err(err).Msg("cloudsync: connection failed, retrying")
		}

		select {
		case <-c.stopCh:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Client) connectAndServe() error {
	dialer := websocket.Dialer{TLSClientConfig: c.tlsConfig, HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	conn, _, err := dialer.Dial(c.url, header)
	if err != nil {
		return fmt.Errorf("cloudsync: dial %s: %w", redactURL(c.url), err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	log.Info().Str("url", redactURL(c.url)).Msg("cloudsync: connected to cloud")

	stopPing := make(chan struct{})
	go c.pingLoop(conn, stopPing)
	defer close(stopPing)

	err = c.readLoop(conn)

	c.mu.Lock()
	c.connected = false
	c.conn = nil
	c.mu.Unlock()

	return err
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			active := c.conn == conn
			c.mu.Unlock()
			if !active {
				return
			}
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("cloudsync: read: %w", err)
		}
		var msg CloudMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Warn().Err(err).Msg("cloudsync: invalid CloudMessage frame, dropping")
			continue
		}
		c.handleMessage(conn, msg)
	}
}

func (c *Client) handleMessage(conn *websocket.Conn, msg CloudMessage) {
	switch msg.Type {
	case TypeWelcome:
		c.mu.Lock()
		c.cursors = msg.Cursors
		c.mu.Unlock()
		log.Info().Interface("cursors", msg.Cursors).Msg("cloudsync: received Welcome")

	case TypeRpc:
		if c.onRpc == nil {
			log.Warn().Str("rpc_id", msg.ID).Msg("cloudsync: Rpc received with no handler registered")
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			result, err := c.onRpc(ctx, msg.ID, msg.Payload)
			if err != nil {
				result, _ = json.Marshal(map[string]string{"error": err.Error()})
			}
			c.send(conn, NewRpcResult(msg.ID, result))
		}()

	case TypeCommand:
		if msg.Command == nil {
			return
		}
		if c.onCommand == nil {
			log.Warn().Str("command_id", msg.Command.ID).Msg("cloudsync: Command received with no handler registered")
			return
		}
		cmd := *msg.Command
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			result := c.onCommand(ctx, cmd)
			c.send(conn, NewCommandResult([]CommandResult{result}))
		}()

	case TypeSyncAck:
		log.Debug().Uint32("accepted", msg.Accepted).Uint32("rejected", msg.Rejected).Msg("cloudsync: SyncAck")

	case TypeRpcResult:
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- msg.Result
		}

	default:
		log.Debug().Str("type", string(msg.Type)).Msg("cloudsync: ignoring unexpected CloudMessage from cloud")
	}
}

// send writes msg to conn, protecting against concurrent writers (only
// one goroutine may write to a gorilla/websocket connection at a time).
func (c *Client) send(conn *websocket.Conn, msg CloudMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("cloudsync: marshal outgoing message")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return // stale connection, already replaced
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		log.Warn().Err(err).Msg("cloudsync: write failed")
	}
}

// SendSyncBatch uploads a batch of changed resources and any command
// results produced since the last batch (spec §4.9 "SyncBatch { items,
// command_results }").
func (c *Client) SendSyncBatch(items []SyncItem, results []CommandResult) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, NewSyncBatch(items, results))
}

// SendActiveOrderSnapshot streams a live order update for the cloud
// console (spec §4.9 "Live console streaming").
func (c *Client) SendActiveOrderSnapshot(snapshot, events json.RawMessage) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, NewActiveOrderSnapshot(snapshot, events))
}

// SendActiveOrderRemoved signals that orderID is no longer live.
func (c *Client) SendActiveOrderRemoved(orderID string) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	c.send(conn, NewActiveOrderRemoved(orderID))
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	u.User = nil
	return u.String()
}
