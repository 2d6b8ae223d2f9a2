// internal/handlers/matchmaking.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/database"
	"github.com/matchroom-gg/matchroom/internal/matchmaking"
)

type queueJoinRequest struct {
	TimeControl string `json:"time_control"`
}

type queueStatusResponse struct {
	Status string `json:"status"` // "queued" or "matched"
	Code   string `json:"code,omitempty"`
}

// QueueJoinHandler puts the caller into the matchmaking pool. If an opponent
// is already waiting for the same time control the response carries the
// session code straight away; otherwise the client polls /queue/status.
func (s *Server) QueueJoinHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := EnsureEphemeralUser(w, r)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	var req queueJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	tc, err := clock.ParseTimeControl(req.TimeControl)
	if err != nil {
		http.Error(w, "invalid time control", http.StatusBadRequest)
		return
	}

	ticket := &matchmaking.Ticket{
		UserID:      userID,
		Username:    "Guest",
		Ephemeral:   true,
		TimeControl: tc,
	}
	if u, dbErr := database.GetUserByID(r.Context(), userID); dbErr == nil {
		ticket.Username = u.Username
		ticket.Rating = u.Rating
		ticket.Ephemeral = u.IsEphemeral
	}

	s.Pool.Enqueue(ticket)

	resp := queueStatusResponse{Status: "queued"}
	if code, ok := s.assignedCode(userID); ok {
		resp = queueStatusResponse{Status: "matched", Code: code}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// QueueStatusHandler reports whether matchmaking has produced a session for
// the caller. The assignment is consumed on read.
func (s *Server) QueueStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := EnsureEphemeralUser(w, r)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}

	resp := queueStatusResponse{Status: "queued"}
	if code, ok := s.assignedCode(userID); ok {
		resp = queueStatusResponse{Status: "matched", Code: code}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// QueueLeaveHandler withdraws the caller's ticket, if any.
func (s *Server) QueueLeaveHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := EnsureEphemeralUser(w, r)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}
	s.Pool.Cancel(userID)
	w.WriteHeader(http.StatusOK)
}
