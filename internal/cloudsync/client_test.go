package cloudsync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCloudEndpoint is a minimal hand-rolled cloud-side stub (not using
// Server) so client.go is exercised in isolation.
type testCloudEndpoint struct {
	upgrader websocket.Upgrader
	connCh   chan *websocket.Conn
}

func newTestCloudEndpoint() *testCloudEndpoint {
	return &testCloudEndpoint{connCh: make(chan *websocket.Conn, 1)}
}

func (e *testCloudEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	e.connCh <- conn
}

func startTestCloudEndpoint(t *testing.T) (*testCloudEndpoint, string) {
	t.Helper()
	ep := newTestCloudEndpoint()
	srv := httptest.NewServer(http.HandlerFunc(ep.handler))
	t.Cleanup(srv.Close)
	wsURL := "ws" + srv.URL[len("http"):]
	return ep, wsURL
}

func TestClientStoresCursorsFromWelcome(t *testing.T) {
	ep, wsURL := startTestCloudEndpoint(t)
	client := NewClient(wsURL, nil, nil, nil)
	client.Start()
	t.Cleanup(client.Stop)

	conn := <-ep.connCh
	raw, err := json.Marshal(NewWelcome(map[string]int64{"product": 42}))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	assert.Eventually(t, func() bool { return client.Cursor("product") == 42 }, time.Second, 10*time.Millisecond)
}

func TestClientAnswersRpcViaHandler(t *testing.T) {
	ep, wsURL := startTestCloudEndpoint(t)
	handler := func(_ context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
		return []byte(`{"handled":true}`), nil
	}
	client := NewClient(wsURL, nil, handler, nil)
	client.Start()
	t.Cleanup(client.Stop)

	conn := <-ep.connCh
	rpc := NewRpc("rpc-1", []byte(`{"op":"ping"}`))
	raw, err := json.Marshal(rpc)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, respRaw, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp CloudMessage
	require.NoError(t, json.Unmarshal(respRaw, &resp))
	assert.Equal(t, TypeRpcResult, resp.Type)
	assert.Equal(t, "rpc-1", resp.ID)
	assert.JSONEq(t, `{"handled":true}`, string(resp.Result))
}

func TestClientExecutesCommandViaHandler(t *testing.T) {
	ep, wsURL := startTestCloudEndpoint(t)
	handler := func(_ context.Context, cmd CloudCommand) CommandResult {
		return CommandResult{CommandID: cmd.ID, Success: true}
	}
	client := NewClient(wsURL, nil, nil, handler)
	client.Start()
	t.Cleanup(client.Stop)

	conn := <-ep.connCh
	cmdMsg := NewCommand(CloudCommand{ID: "cmd-1", CommandType: "void_order"})
	raw, err := json.Marshal(cmdMsg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, respRaw, err := conn.ReadMessage()
	require.NoError(t, err)

	var resp CloudMessage
	require.NoError(t, json.Unmarshal(respRaw, &resp))
	assert.Equal(t, TypeCommandResult, resp.Type)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "cmd-1", resp.Results[0].CommandID)
	assert.True(t, resp.Results[0].Success)
}

func TestClientSendSyncBatch(t *testing.T) {
	ep, wsURL := startTestCloudEndpoint(t)
	client := NewClient(wsURL, nil, nil, nil)
	client.Start()
	t.Cleanup(client.Stop)

	conn := <-ep.connCh
	assert.Eventually(t, func() bool { return client.Connected() }, time.Second, 10*time.Millisecond)

	client.SendSyncBatch([]SyncItem{{Resource: "product", ResourceID: "1", Version: 5}}, nil)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg CloudMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeSyncBatch, msg.Type)
	require.Len(t, msg.Items, 1)
	assert.EqualValues(t, 5, msg.Items[0].Version)
}
