package dispatch

import (
	"context"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/vladimirpesic/juggler/internal/logging"
)

// wsStream adapts a websocket connection to the byte-stream interface Serve
// expects: each text message is one frame on the read side, and each Encode
// (a single Write call) becomes one text message on the write side.
type wsStream struct {
	conn    *websocket.Conn
	current io.Reader
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.current == nil {
			_, reader, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.current = reader
		}

		n, err := s.current.Read(p)
		if err == io.EOF {
			// Message exhausted; splice a separator so the JSON decoder
			// sees a stream of whitespace-delimited values.
			s.current = nil
			if n < len(p) {
				p[n] = '\n'
				n++
			}
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ServeWebSocket serves one websocket connection with the same framing and
// concurrency behavior as Serve.
func (e *Endpoint) ServeWebSocket(ctx context.Context, conn *websocket.Conn) error {
	stream := &wsStream{conn: conn}
	return e.Serve(ctx, stream, stream)
}

// WebSocketHandler upgrades HTTP requests and serves each connection with a
// fresh endpoint, so every connection gets its own default session scope.
func WebSocketHandler(registry *Registry, dispatcher *Dispatcher) http.Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	logger := logging.Logger()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		endpoint, err := NewEndpoint(registry, dispatcher)
		if err != nil {
			logger.Error("endpoint construction failed", "err", err)
			return
		}

		if err := endpoint.ServeWebSocket(r.Context(), conn); err != nil {
			logger.Info("websocket connection closed", "err", err)
		}
	})
}
