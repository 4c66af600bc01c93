package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"beltline.dev/internal/protocol"
	"beltline.dev/internal/session"
)

type Server struct {
	sess     *session.Session
	validate *protocol.Validator
	log      *log.Logger
	outQueue int

	upgrader websocket.Upgrader
}

// NewServer serves editor clients of one session. outQueue is the default
// per-client send queue; HELLO may ask for a different size.
func NewServer(sess *session.Session, v *protocol.Validator, outQueue int, logger *log.Logger) *Server {
	if outQueue <= 0 {
		outQueue = 64
	}
	return &Server{
		sess:     sess,
		validate: v,
		log:      logger,
		outQueue: outQueue,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		clientID, out := s.handshake(ctx, conn)
		if clientID == "" {
			return
		}

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			g, code, reason := s.decodeGesture(msg)
			if code != "" {
				s.reject(out, g.ID, code, reason)
				continue
			}
			select {
			case s.sess.Inbox() <- session.Envelope{ClientID: clientID, Gesture: g}:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.sess.Leave() <- clientID
	}
}

// decodeGesture validates one inbound message. A non-empty code rejects it.
func (s *Server) decodeGesture(msg []byte) (protocol.GestureMsg, string, string) {
	var g protocol.GestureMsg
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return g, protocol.ErrProtoBadRequest, "malformed json"
	}
	if base.Type != protocol.TypeGesture {
		return g, protocol.ErrProtoBadRequest, "expected GESTURE"
	}
	_ = json.Unmarshal(msg, &g)
	if base.ProtocolVersion != protocol.Version {
		return g, protocol.ErrProtoVersion, "bad protocol_version"
	}
	if s.validate != nil {
		if err := s.validate.Validate(protocol.TypeGesture, msg); err != nil {
			return g, protocol.ErrBadRequest, err.Error()
		}
	}
	if err := json.Unmarshal(msg, &g); err != nil {
		return g, protocol.ErrBadRequest, err.Error()
	}
	return g, "", ""
}

func (s *Server) reject(out chan []byte, id, code, reason string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          id,
		Code:            code,
		Message:         reason,
		Seq:             s.sess.Stats().Seq,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (clientID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, "expected HELLO")
		return "", nil
	}
	if s.validate != nil {
		if err := s.validate.Validate(protocol.TypeHello, msg); err != nil {
			closeWith(conn, "invalid HELLO")
			return "", nil
		}
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, "bad protocol_version")
		return "", nil
	}
	if hello.BlueprintID != "" && hello.BlueprintID != s.sess.BlueprintID() {
		closeWith(conn, protocol.ErrBlueprintNotFound)
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = s.outQueue
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan session.JoinResponse, 1)
	select {
	case s.sess.Join() <- session.JoinRequest{Name: hello.ClientName, Out: out, Resp: respCh}:
	case <-ctx.Done():
		return "", nil
	}
	var resp session.JoinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		return "", nil
	}

	// Send welcome + the starting frame immediately.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.sess.Leave() <- resp.Welcome.ClientID
		return "", nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, resp.Frame); err != nil {
		s.sess.Leave() <- resp.Welcome.ClientID
		return "", nil
	}
	if s.log != nil {
		s.log.Printf("client joined id=%s name=%s", resp.Welcome.ClientID, hello.ClientName)
	}
	return resp.Welcome.ClientID, out
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
