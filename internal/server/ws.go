package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/euforicio/markpad/internal/editor"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period; must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxInboundBytes = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Non-browser clients send no Origin; browsers must match the host.
		return r.Header.Get("Origin") == "" || isValidOrigin(r)
	},
}

// handleWebsocket streams session events (preview, notice, state frames) to
// the client. The stream is one-way; mutations go through the REST API.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.editor.Subscribe(ctx)

	// Prime the new client: current state directly, current preview via the
	// broadcast that Preview triggers.
	view := s.editor.View()
	initial := editor.Event{Timestamp: time.Now(), Type: editor.EventState, State: &view}
	if err := writeFrame(conn, initial); err != nil {
		_ = conn.Close()
		return
	}
	s.editor.Preview()

	go s.readPump(conn, cancel)
	s.writePump(ctx, conn, events)
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, events <-chan editor.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := writeFrame(conn, evt); err != nil {
				s.logger.Debug("websocket write failed", slog.Any("err", err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump discards inbound messages; it exists to process control frames
// and notice the peer going away.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxInboundBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, evt editor.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(evt)
}
