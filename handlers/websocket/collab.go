package websocket

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"

	"pixelart-server/editor"
	"pixelart-server/middleware"
)

const (
	EventJoinSession    = "join-session"
	EventLeaveSession   = "leave-session"
	EventGridChanged    = "grid-changed"
	EventViewersChanged = "viewers-changed"
	EventJoinAck        = "join-session-ack"
)

// ackFunc is the callback Socket.IO passes when the client asked for an ack.
type ackFunc = func([]any, error)

// SessionAuth checks that a token was issued for a session.
type SessionAuth interface {
	Verify(token, sessionID string) (*middleware.SessionClaims, error)
}

// Hub pushes session state to the browsers displaying it. Each session
// is a Socket.IO room named after the session ID.
type Hub struct {
	srv  *socketio.Server
	reg  *editor.Registry
	auth SessionAuth

	mu      sync.RWMutex
	viewers map[string]int
}

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)

// NewHub sets up the Socket.IO server. Without origins, only localhost
// pages may connect.
func NewHub(reg *editor.Registry, auth SessionAuth, origins []string) *Hub {
	h := &Hub{
		reg:     reg,
		auth:    auth,
		viewers: make(map[string]int),
	}

	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)

	allowed := make([]any, 0, len(origins)+1)
	for _, o := range origins {
		allowed = append(allowed, o)
	}
	if len(allowed) == 0 {
		allowed = append(allowed, localhostOrigin)
	}
	opts.SetCors(&types.Cors{
		Origin:      allowed,
		Credentials: true,
	})

	h.srv = socketio.NewServer(nil, opts)
	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	h.srv.On("connection", h.onConnection)
	return h
}

func (h *Hub) Server() *socketio.Server {
	return h.srv
}

// GridChanged implements editor.Notifier.
func (h *Hub) GridChanged(state editor.State) {
	if err := h.srv.To(socketio.Room(state.ID)).Emit(EventGridChanged, state); err != nil {
		logrus.WithError(err).WithField("session_id", state.ID).Warn("Failed to push grid")
	}
}

// ViewerCount returns how many sockets display a session.
func (h *Hub) ViewerCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.viewers[sessionID]
}

// Viewers returns a copy of the per-session viewer counts.
func (h *Hub) Viewers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	viewers := make(map[string]int, len(h.viewers))
	for k, v := range h.viewers {
		viewers[k] = v
	}
	return viewers
}

func (h *Hub) setViewers(sessionID string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 {
		delete(h.viewers, sessionID)
		return
	}
	h.viewers[sessionID] = n
}

func (h *Hub) onConnection(clients ...any) {
	socket, ok := clients[0].(*socketio.Socket)
	if !ok {
		return
	}
	logrus.WithField("socket_id", socket.Id()).Debug("Socket connected")

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(EventJoinSession, func(datas ...any) {
		h.handleJoin(socket, datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On(EventLeaveSession, func(datas ...any) {
		_, args := extractAck(datas)
		if len(args) == 0 {
			return
		}
		if sessionID, ok := args[0].(string); ok && sessionID != "" {
			socket.Leave(socketio.Room(sessionID))
			h.recount(socketio.Room(sessionID), socket.Id())
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnecting", func(datas ...any) {
		for _, room := range socket.Rooms().Keys() {
			if string(room) == string(socket.Id()) {
				continue
			}
			h.recount(room, socket.Id())
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	socket.On("disconnect", func(datas ...any) {
		socket.RemoveAllListeners("")
		logrus.WithField("socket_id", socket.Id()).Debug("Socket disconnected")
	})
}

func (h *Hub) handleJoin(socket *socketio.Socket, datas []any) {
	ack, args := extractAck(datas)
	sessionID, token, err := parseJoinArgs(args)
	if err != nil {
		respondWithAck(socket, ack, EventJoinAck, makeJoinAckPayload(sessionID, 0, err), err)
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"socket_id":  socket.Id(),
		"session_id": sessionID,
	})

	if _, err := h.auth.Verify(token, sessionID); err != nil {
		log.WithError(err).Debug("Rejected join")
		err = errors.New("unauthorized")
		respondWithAck(socket, ack, EventJoinAck, makeJoinAckPayload(sessionID, 0, err), err)
		return
	}

	session, err := h.reg.Get(sessionID)
	if err != nil {
		respondWithAck(socket, ack, EventJoinAck, makeJoinAckPayload(sessionID, 0, err), err)
		return
	}

	room := socketio.Room(sessionID)
	socket.Join(room)
	log.Info("Socket joined session")

	h.srv.In(room).FetchSockets()(func(sockets []*socketio.RemoteSocket, fetchErr error) {
		if fetchErr != nil {
			respondWithAck(socket, ack, EventJoinAck, makeJoinAckPayload(sessionID, 0, fetchErr), fetchErr)
			return
		}

		h.setViewers(sessionID, len(sockets))
		_ = h.srv.In(room).Emit(EventViewersChanged, map[string]any{
			"sessionId": sessionID,
			"viewers":   len(sockets),
		})

		respondWithAck(socket, ack, EventJoinAck, makeJoinAckPayload(sessionID, len(sockets), nil), nil)
		_ = socket.Emit(EventGridChanged, session.State())
	})
}

// recount updates the viewer count of room as if leaving had already left.
func (h *Hub) recount(room socketio.Room, leaving socketio.SocketId) {
	sessionID := string(room)
	h.srv.In(room).FetchSockets()(func(sockets []*socketio.RemoteSocket, err error) {
		if err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Warn("Failed to count viewers")
			return
		}

		remaining := 0
		for _, s := range sockets {
			if s.Id() != leaving {
				remaining++
			}
		}
		h.setViewers(sessionID, remaining)

		if remaining > 0 {
			_ = h.srv.In(room).Emit(EventViewersChanged, map[string]any{
				"sessionId": sessionID,
				"viewers":   remaining,
			})
		}
	})
}

func parseJoinArgs(args []any) (sessionID, token string, err error) {
	if len(args) == 0 {
		return "", "", fmt.Errorf("session id is required")
	}
	sessionID, ok := args[0].(string)
	if !ok || sessionID == "" {
		return "", "", fmt.Errorf("invalid session id")
	}
	if len(args) < 2 {
		return sessionID, "", fmt.Errorf("token is required")
	}
	token, ok = args[1].(string)
	if !ok || token == "" {
		return sessionID, "", fmt.Errorf("invalid token")
	}
	return sessionID, token, nil
}

func makeJoinAckPayload(sessionID string, viewers int, ackErr error) map[string]any {
	response := map[string]any{
		"status":  "ok",
		"viewers": viewers,
	}
	if sessionID != "" {
		response["sessionId"] = sessionID
	}
	if ackErr != nil {
		response["status"] = "error"
		response["error"] = ackErr.Error()
	}
	return response
}

// extractAck splits the client's ack callback, if any, off the event args.
func extractAck(datas []any) (ack ackFunc, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}
	if ack, ok := datas[len(datas)-1].(func([]any, error)); ok {
		return ack, datas[:len(datas)-1]
	}
	return nil, datas
}

func respondWithAck(socket *socketio.Socket, ack ackFunc, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack([]any{payload}, ackErr)
	}

	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}
