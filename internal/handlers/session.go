// internal/handlers/session.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/session"
)

type createSessionRequest struct {
	TimeControl      string `json:"time_control"`
	TournamentID     string `json:"tournament_id,omitempty"`
	TournamentGameID string `json:"tournament_game_id,omitempty"`
	LeagueID         string `json:"league_id,omitempty"`
	LeagueMatchID    string `json:"league_match_id,omitempty"`
}

// sessionSnapshot is the wire shape for session state queries.
type sessionSnapshot struct {
	Code        string               `json:"code"`
	State       session.State        `json:"state"`
	Result      session.Result       `json:"result,omitempty"`
	EndReason   string               `json:"end_reason,omitempty"`
	TimeControl string               `json:"time_control"`
	Turn        clock.Side           `json:"turn"`
	FEN         string               `json:"fen"`
	Moves       []string             `json:"moves"`
	WhiteMs     int64                `json:"white_ms"`
	BlackMs     int64                `json:"black_ms"`
	White       *session.Participant `json:"white,omitempty"`
	Black       *session.Participant `json:"black,omitempty"`
}

func snapshotOf(sess *session.Session) sessionSnapshot {
	whiteMs, blackMs := sess.RemainingMs()

	sess.Mu.Lock()
	defer sess.Mu.Unlock()
	return sessionSnapshot{
		Code:        sess.Code,
		State:       sess.State,
		Result:      sess.Result,
		EndReason:   sess.EndReason,
		TimeControl: sess.TimeControl.String(),
		Turn:        sess.Turn,
		FEN:         sess.Position.FEN,
		Moves:       sess.Position.MovesUCI,
		WhiteMs:     whiteMs,
		BlackMs:     blackMs,
		White:       sess.White,
		Black:       sess.Black,
	}
}

// CreateSessionHandler creates a fresh pending session for the requested time
// control and returns its join code. Optional scheduler linkage ties the
// eventual result back to a tournament game or league match.
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	tc, err := clock.ParseTimeControl(req.TimeControl)
	if err != nil {
		http.Error(w, "invalid time control", http.StatusBadRequest)
		return
	}

	sess, err := s.Registry.Create(tc)
	if err != nil {
		http.Error(w, "failed to allocate session", http.StatusServiceUnavailable)
		return
	}

	if req.TournamentGameID != "" {
		gameID, parseErr := uuid.Parse(req.TournamentGameID)
		trID, parseErr2 := uuid.Parse(req.TournamentID)
		if parseErr != nil || parseErr2 != nil {
			http.Error(w, "invalid tournament linkage", http.StatusBadRequest)
			return
		}
		s.linkTournamentGame(sess, trID, gameID)
	}
	if req.LeagueMatchID != "" {
		matchID, parseErr := uuid.Parse(req.LeagueMatchID)
		lgID, parseErr2 := uuid.Parse(req.LeagueID)
		if parseErr != nil || parseErr2 != nil {
			http.Error(w, "invalid league linkage", http.StatusBadRequest)
			return
		}
		s.linkLeagueMatch(sess, lgID, matchID)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"code": sess.Code})
}

// GetSessionHandler returns a snapshot of one session. Clock values are
// computed at read time, so a flagged-but-unsettled session reads as zero.
func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/session/"))
	if code == "" || strings.Contains(code, "/") {
		http.Error(w, "missing session code", http.StatusBadRequest)
		return
	}

	sess, ok := s.Registry.Get(code)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshotOf(sess))
}

// ListSessionsHandler returns snapshots of every live session.
func (s *Server) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions := s.Registry.List()
	out := make([]sessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, snapshotOf(sess))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
