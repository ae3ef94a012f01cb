package bus

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// handshakeErrorDelay gives a client time to receive a handshake failure
// response before the connection is closed (spec §4.7 "waits 100 ms, and
// closes").
const handshakeErrorDelay = 100 * time.Millisecond

// Server accepts mTLS client connections and speaks the framed bus
// protocol over them (spec §4.7 "Connection" + §4.8). Grounded on
// original_source/edge-server/src/message/tcp_server.rs's accept_loop /
// handle_client_connection.
type Server struct {
	bus       *MessageBus
	listener  net.Listener
	tlsConfig *tls.Config
}

// NewServer binds addr and wraps it in tlsConfig. Per spec §4.7 "STRICT
// MODE", a nil tlsConfig is refused outright — this bus never serves
// plaintext.
func NewServer(addr string, tlsConfig *tls.Config, b *MessageBus) (*Server, error) {
	if tlsConfig == nil {
		return nil, fmt.Errorf("bus: refusing to start TCP server without mTLS configuration")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bus: listen %s: %w", addr, err)
	}
	return &Server{bus: b, listener: tls.NewListener(ln, tlsConfig), tlsConfig: tlsConfig}, nil
}

// Addr returns the bound listener address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is cancelled or the listener
// errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	log.Info().Str("addr", s.listener.Addr().String()).Msg("message bus listening")
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("bus: accept: %w", err)
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	clientID, err := performHandshake(conn)
	if err != nil {
		log.Debug().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("bus: handshake failed")
		return
	}

	sub := s.bus.subscribe(clientID)
	defer s.bus.unsubscribe(clientID)
	log.Debug().Str("client_id", clientID).Msg("bus: client registered")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.forwardToClient(connCtx, conn, sub)
	s.readFromClient(connCtx, conn, clientID, cancel)
}

// performHandshake reads the client's Handshake message, validates the
// protocol version and (when mTLS identity is available) that the TLS
// peer certificate's CommonName matches the claimed client_name (spec
// §4.7 step "Identity verification").
func performHandshake(conn net.Conn) (string, error) {
	msg, err := Decode(conn)
	if err != nil {
		return "", fmt.Errorf("bus: read handshake: %w", err)
	}
	if msg.EventType != EventHandshake {
		return "", fmt.Errorf("bus: expected Handshake, got %s", msg.EventType)
	}

	var payload HandshakePayload
	if err := msg.ParsePayload(&payload); err != nil {
		return "", fmt.Errorf("bus: invalid handshake payload: %w", err)
	}

	if payload.Version != ProtocolVersion {
		reason := fmt.Sprintf("protocol version mismatch: server=%d, client=%d. Please update your client.", ProtocolVersion, payload.Version)
		sendHandshakeError(conn, msg.RequestID, reason)
		return "", fmt.Errorf("bus: %s", reason)
	}

	if peerID := peerIdentity(conn); peerID != "" && payload.ClientName != nil && *payload.ClientName != peerID {
		reason := fmt.Sprintf("identity verification failed: certificate subject=%q does not match handshake client_name=%q", peerID, *payload.ClientName)
		sendHandshakeError(conn, msg.RequestID, reason)
		return "", fmt.Errorf("bus: %s", reason)
	}

	clientID := ""
	if payload.ClientID != nil {
		clientID = *payload.ClientID
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}

	resp := NewResponse(ResponsePayload{Success: true, Message: fmt.Sprintf("Connected as client: %s", clientID)}).
		WithCorrelationID(msg.RequestID)
	if err := Encode(conn, resp); err != nil {
		log.Warn().Err(err).Msg("bus: failed to send handshake response")
	}

	return clientID, nil
}

func sendHandshakeError(conn net.Conn, requestID uuid.UUID, reason string) {
	resp := NewResponse(ResponsePayload{Success: false, Message: reason}).WithCorrelationID(requestID)
	if err := Encode(conn, resp); err != nil {
		log.Error().Err(err).Msg("bus: failed to send handshake error")
	}
	time.Sleep(handshakeErrorDelay)
}

// peerIdentity extracts the client certificate's CommonName from an
// established TLS connection, or "" if conn isn't TLS or presents no
// certificate.
func peerIdentity(conn net.Conn) string {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return ""
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return ""
	}
	return state.PeerCertificates[0].Subject.CommonName
}

// forwardToClient drains sub's queue to conn, synthesizing a resync Sync
// message whenever the client has fallen behind (spec §4.8 "Lag
// recovery").
func (s *Server) forwardToClient(ctx context.Context, conn net.Conn, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.ch:
			if err := Encode(conn, msg); err != nil {
				log.Debug().Str("client_id", sub.clientID).Err(err).Msg("bus: write failed, disconnecting")
				return
			}
		case <-sub.lagNotify:
			if dropped := sub.pendingLag(); dropped > 0 {
				resync := NewResyncMessage(sub.clientID, dropped)
				if err := Encode(conn, resync); err != nil {
					log.Debug().Str("client_id", sub.clientID).Err(err).Msg("bus: resync write failed")
					return
				}
			}
		}
	}
}

// readFromClient reads messages until the connection errors or ctx is
// cancelled, publishing each to the bus (spec §4.8 ingress path).
func (s *Server) readFromClient(ctx context.Context, conn net.Conn, clientID string, onDisconnect context.CancelFunc) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := Decode(conn)
		if err != nil {
			log.Debug().Str("client_id", clientID).Err(err).Msg("bus: client disconnected")
			onDisconnect()
			return
		}
		s.bus.publishFromClient(clientID, msg)
	}
}
