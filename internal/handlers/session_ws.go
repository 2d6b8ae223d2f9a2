// internal/handlers/session_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/matchroom-gg/matchroom/internal/cache"
	"github.com/matchroom-gg/matchroom/internal/database"
	"github.com/matchroom-gg/matchroom/internal/middleware"
	"github.com/matchroom-gg/matchroom/internal/session"
)

// SessionMessage represents the structure for incoming WebSocket messages
// during a match.
type SessionMessage struct {
	Type string `json:"type"`

	// From/To/Promotion carry a move in coordinate form ("e2", "e4", "q").
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}

// connSet tracks the live WebSocket connections bound to one session.
type connSet struct {
	conns map[uuid.UUID]*websocket.Conn
}

func (s *Server) connsFor(code string) *connSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsConns == nil {
		s.wsConns = make(map[string]*connSet)
	}
	cs, ok := s.wsConns[code]
	if !ok {
		cs = &connSet{conns: make(map[uuid.UUID]*websocket.Conn)}
		s.wsConns[code] = cs
	}
	return cs
}

func (s *Server) bindConn(code string, userID uuid.UUID, c *websocket.Conn) {
	cs := s.connsFor(code)
	s.mu.Lock()
	cs.conns[userID] = c
	s.mu.Unlock()
}

func (s *Server) unbindConn(code string, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.wsConns[code]; ok {
		delete(cs.conns, userID)
		if len(cs.conns) == 0 {
			delete(s.wsConns, code)
		}
	}
}

// SessionWSHandler upgrades the HTTP connection to WebSocket for a specific
// session. It authenticates the user, seats them (or registers a spectator),
// installs the broadcast plumbing, and then runs the read loop.
func (s *Server) SessionWSHandler(logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Extract the session code from the URL path: /session/ws/{code}
		code := strings.ToUpper(strings.Trim(strings.TrimPrefix(r.URL.Path, "/session/ws/"), "/"))
		if code == "" {
			http.Error(w, "Missing session code in path (/session/ws/{code})", http.StatusBadRequest)
			return
		}

		sess, ok := s.Registry.Get(code)
		if !ok {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"match"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for session %s: %v", code, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "match" {
			logger.Warnf("Client for session %s connected with invalid subprotocol: %s", code, c.Subprotocol())
			c.Close(websocket.StatusCode(BadSubprotocolError), "Client must use the 'match' subprotocol.")
			return
		}

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("User authentication failed for session %s: %v", code, err)
			c.Close(websocket.StatusCode(InvalidAuthTokenError), "Authentication failed.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, code)
		logger.Infof("User %s authenticated for session %s", userID, code)

		// Install broadcast plumbing once per session instance.
		sess.Mu.Lock()
		if sess.BroadcastFn == nil {
			sess.BroadcastFn = s.createBroadcastFunc(code, logger)
		}
		if sess.BroadcastToUserFn == nil {
			sess.BroadcastToUserFn = s.createBroadcastToUserFunc(code, logger)
		}
		sess.Mu.Unlock()

		spectator := r.URL.Query().Get("spectate") == "1"
		if !spectator {
			p := &session.Participant{UserID: userID, Username: "Guest", Connected: true}
			if u, dbErr := database.GetUserByID(r.Context(), userID); dbErr == nil {
				p.Username = u.Username
				p.Rating = u.Rating
				p.Ephemeral = u.IsEphemeral
			}
			if _, seatErr := sess.Seat(p); seatErr != nil {
				// Full board: fall back to watching.
				spectator = true
			}
		}
		if spectator {
			sess.Spectate(userID)
		}

		// Once both seats fill, open the persistent match row. Idempotent, so
		// reconnects are harmless.
		if s.Persist {
			sess.Mu.Lock()
			active := sess.State == session.StateActive
			var whiteID, blackID uuid.UUID
			if active {
				whiteID, blackID = sess.White.UserID, sess.Black.UserID
			}
			tcStr := sess.TimeControl.String()
			sess.Mu.Unlock()
			if active {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := database.CreateMatchRecord(ctx, s.matchIDFor(code), code, whiteID, blackID, tcStr); err != nil {
						logger.Warnf("Failed to create match record for session %s: %v", code, err)
					}
				}()
			}
		}

		s.bindConn(code, userID, c)

		// Initial state snapshot so late joiners and reconnects can render.
		snap := snapshotOf(sess)
		sendWsMessage(r.Context(), c, map[string]interface{}{"type": "session_state", "session": snap})

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s.readSessionMessages(ctx, c, sess, userID, logger)

		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, code, nil)
		s.unbindConn(code, userID)
		sess.HandleDisconnect(userID)
		s.Registry.RemoveIfEmpty(code)
	}
}

// createBroadcastFunc returns a function suitable for Session.BroadcastFn. It
// marshals the event and sends it asynchronously to every bound connection.
// The session lock may be held by the caller, so nothing here touches it.
func (s *Server) createBroadcastFunc(code string, logger *logrus.Logger) func(ev session.Event) {
	return func(ev session.Event) {
		s.mu.Lock()
		cs, ok := s.wsConns[code]
		var targets []*websocket.Conn
		if ok {
			targets = make([]*websocket.Conn, 0, len(cs.conns))
			for _, c := range cs.conns {
				targets = append(targets, c)
			}
		}
		s.mu.Unlock()

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s) for session %s: %v", ev.Type, code, err)
			return
		}

		// Feed the recorder queue off the hot path.
		if s.Persist && cache.Rdb != nil {
			go func(ev session.Event) {
				rec := cache.MatchEventRecord{
					SessionCode:  code,
					EventType:    string(ev.Type),
					EventPayload: ev.Payload,
					Timestamp:    time.Now().UnixMilli(),
				}
				if uid, ok := ev.Payload["user_id"].(uuid.UUID); ok {
					rec.ActorUserID = uid
				}
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := cache.PublishMatchEvent(ctx, rec); err != nil {
					logger.Warnf("Failed to publish event (%s) for session %s: %v", ev.Type, code, err)
				}
			}(ev)
		}

		go func(conns []*websocket.Conn, data []byte) {
			for _, c := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := c.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Warnf("Failed to write broadcast message in session %s: %v", code, err)
				}
			}
		}(targets, msgBytes)
	}
}

// createBroadcastToUserFunc returns a function suitable for
// Session.BroadcastToUserFn.
func (s *Server) createBroadcastToUserFunc(code string, logger *logrus.Logger) func(userID uuid.UUID, ev session.Event) {
	return func(userID uuid.UUID, ev session.Event) {
		s.mu.Lock()
		var target *websocket.Conn
		if cs, ok := s.wsConns[code]; ok {
			target = cs.conns[userID]
		}
		s.mu.Unlock()

		if target == nil {
			return
		}
		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s) for user %s in session %s: %v", ev.Type, userID, code, err)
			return
		}
		go func(conn *websocket.Conn, data []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write private message to user %s in session %s: %v", userID, code, err)
			}
		}(target, msgBytes)
	}
}

// readSessionMessages continuously reads messages from a client's WebSocket
// connection, unmarshals them, and routes them to the session. It operates
// within the connection's context and exits upon error or cancellation.
func (s *Server) readSessionMessages(ctx context.Context, c *websocket.Conn, sess *session.Session, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for user %s in session %s.", userID, sess.Code)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for user %s in session %s.", userID, sess.Code)
			} else {
				logger.Warnf("Error reading from WebSocket for user %s in session %s: %v (Status: %d)", userID, sess.Code, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from user %s in session %s. Ignoring.", msgType, userID, sess.Code)
			continue
		}

		var msg SessionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON received from user %s in session %s: %v", userID, sess.Code, err)
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received action '%s' from user %s in session %s.", msg.Type, userID, sess.Code)

		switch msg.Type {
		case "submit_move":
			if _, moveErr := sess.ApplyMove(userID, msg.From, msg.To, msg.Promotion); moveErr != nil {
				sendWsError(ctx, c, moveErr.Error())
			}

		case "offer_draw":
			if actErr := sess.OfferDraw(userID); actErr != nil {
				sendWsError(ctx, c, actErr.Error())
			}
		case "accept_draw":
			if actErr := sess.AcceptDraw(userID); actErr != nil {
				sendWsError(ctx, c, actErr.Error())
			}
		case "decline_draw":
			if actErr := sess.DeclineDraw(userID); actErr != nil {
				sendWsError(ctx, c, actErr.Error())
			}

		case "resign":
			if actErr := sess.Resign(userID); actErr != nil {
				sendWsError(ctx, c, actErr.Error())
			}

		case "request_rematch":
			if actErr := sess.RequestRematch(userID); actErr != nil {
				sendWsError(ctx, c, actErr.Error())
			}
		case "accept_rematch":
			next, actErr := sess.AcceptRematch(userID)
			if actErr != nil {
				sendWsError(ctx, c, actErr.Error())
				continue
			}
			sendWsMessage(ctx, c, map[string]interface{}{
				"type": "rematch_created",
				"code": next.Code,
			})
		case "decline_rematch":
			if actErr := sess.DeclineRematch(userID); actErr != nil {
				sendWsError(ctx, c, actErr.Error())
			}

		case "spectate":
			sess.Spectate(userID)

		case "ping":
			logger.Tracef("Received ping from user %s, sending pong.", userID)
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})

		default:
			logger.Warnf("Unknown action type '%s' from user %s in session %s.", msg.Type, userID, sess.Code)
			sendWsError(ctx, c, fmt.Sprintf("Unknown action type: %s", msg.Type))
		}

		select {
		case <-ctx.Done():
			logger.Infof("Context canceled after processing message for user %s in session %s.", userID, sess.Code)
			return
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status == -1 {
			log.Printf("Error writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errMsg string) {
	sendWsMessage(ctx, c, map[string]string{
		"type":  "error",
		"error": errMsg,
	})
}
