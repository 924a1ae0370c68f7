package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/glow/pkg/auth"
	"github.com/nstogner/glow/pkg/chat"
	"github.com/nstogner/glow/pkg/conversation"
	"github.com/nstogner/glow/pkg/domain"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var errTurnInProgress = errors.New("a turn is already running on this connection")

// Websocket event types.
const (
	eventStatus   = "status"
	eventSnapshot = "snapshot"
	eventMessage  = "message"
	eventError    = "error"
)

type wsEvent struct {
	Type    string          `json:"type"`
	Label   string          `json:"label,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
	Result  *chatResponse   `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// wsConn serializes writes to a websocket.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(ev wsEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.ws.WriteJSON(ev)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// handleChatWebSocket runs chat turns over a websocket. Each client frame is
// a chat request; while the turn runs the server pushes status labels and
// part snapshots, then the final result.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()
	conn := &wsConn{ws: ws}

	// ctx ends the running turn when the client goes away.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	// Keepalive pings.
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// The reader keeps reading during a turn so a closed socket is noticed
	// at once. At most one request waits behind the running turn.
	requests := make(chan chatRequest, 1)
	go func() {
		defer wg.Done()
		defer close(requests)
		defer cancel()
		for {
			var req chatRequest
			if err := ws.ReadJSON(&req); err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Error("WebSocket read error", "error", err)
				}
				return
			}
			select {
			case requests <- req:
			default:
				conn.send(wsEvent{Type: eventError, Error: errTurnInProgress.Error()})
			}
		}
	}()

	// One turn per request frame.
	for req := range requests {
		if !s.Limiter.Allow(id.Email) {
			conn.send(wsEvent{Type: eventError, Error: errRateLimited.Error()})
			continue
		}
		if err := s.runSocketTurn(ctx, conn, id, req); err != nil {
			if ctx.Err() == nil {
				slog.Error("WebSocket write error", "error", err)
			}
			break
		}
	}

	cancel()
	ws.Close()
	wg.Wait()
}

// runSocketTurn runs one turn, streaming progress to conn. It returns an
// error only when the socket can no longer be written.
func (s *Server) runSocketTurn(ctx context.Context, conn *wsConn, id *auth.Identity, req chatRequest) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		writeErr  error
		lastLabel string
	)
	observe := func(snap domain.Message) {
		if writeErr != nil {
			return
		}
		if label := chat.ToolDisplayName(snap); label != lastLabel {
			lastLabel = label
			if writeErr = conn.send(wsEvent{Type: eventStatus, Label: label}); writeErr != nil {
				cancel()
				return
			}
		}
		if writeErr = conn.send(wsEvent{Type: eventSnapshot, Message: &snap}); writeErr != nil {
			cancel()
		}
	}

	out, err := s.Conversations.Turn(ctx, id, conversation.TurnInput{
		ConversationID: req.ConversationID,
		Messages:       req.Messages,
		Observe:        observe,
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := err.Error()
		if statusFor(err) == http.StatusBadGateway {
			msg = failTurn
		}
		return conn.send(wsEvent{Type: eventError, Error: msg})
	}
	resp := newChatResponse(out)
	return conn.send(wsEvent{Type: eventMessage, Result: &resp})
}
