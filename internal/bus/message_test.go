package bus

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := NewMessage(EventOrderEvent, []byte(`{"hello":"world"}`))
	msg.WithCorrelationID(uuid.New())
	msg.Source = "edge"
	msg.Target = "kds-1"

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))

	got, err := Decode(&buf)
	require.NoError(t, err)

	assert.Equal(t, msg.EventType, got.EventType)
	assert.Equal(t, msg.RequestID, got.RequestID)
	require.NotNil(t, got.CorrelationID)
	assert.Equal(t, *msg.CorrelationID, *got.CorrelationID)
	assert.Equal(t, msg.Payload, got.Payload)
}

func TestEncodeDecodeNilCorrelationID(t *testing.T) {
	msg := NewMessage(EventHandshake, []byte(`{}`))

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, msg))

	got, err := Decode(&buf)
	require.NoError(t, err)
	assert.Nil(t, got.CorrelationID)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	msg := NewMessage(EventSync, make([]byte, maxPayloadBytes+1))
	var buf bytes.Buffer
	err := Encode(&buf, msg)
	assert.Error(t, err)
}

func TestDecodeRejectsOversizedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	msg := NewMessage(EventSync, nil)
	require.NoError(t, Encode(&buf, msg))

	raw := buf.Bytes()
	// Overwrite the 4-byte LE length prefix (offset 33) with a bogus huge value.
	raw[33], raw[34], raw[35], raw[36] = 0xff, 0xff, 0xff, 0x7f

	_, err := Decode(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestParsePayload(t *testing.T) {
	payload := HandshakePayload{Version: ProtocolVersion, ClientVersion: "1.0.0"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	msg := NewMessage(EventHandshake, raw)

	var got HandshakePayload
	require.NoError(t, msg.ParsePayload(&got))
	assert.Equal(t, payload, got)
}

func TestNewResyncMessage(t *testing.T) {
	msg := NewResyncMessage("client-42", 7)
	assert.Equal(t, EventSync, msg.EventType)
	assert.Equal(t, "client-42", msg.Target)

	var payload SyncResyncPayload
	require.NoError(t, msg.ParsePayload(&payload))
	assert.Equal(t, "lagged", payload.Reason)
	assert.EqualValues(t, 7, payload.DroppedMessages)
	assert.Equal(t, "full_resync", payload.Action)
}
