// internal/handlers/tournament.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/session"
	"github.com/matchroom-gg/matchroom/internal/tournament"
)

type createTournamentRequest struct {
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	TimeControl  string            `json:"time_control"`
	Participants []tournamentEntry `json:"participants"`
}

type tournamentEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
}

// CreateTournamentHandler registers a pending tournament. Entrants are fixed
// at creation; the field closes when /start fires.
func (s *Server) CreateTournamentHandler(w http.ResponseWriter, r *http.Request) {
	var req createTournamentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	entries := make([]*tournament.Participant, 0, len(req.Participants))
	for _, e := range req.Participants {
		id, err := uuid.Parse(e.UserID)
		if err != nil {
			http.Error(w, "invalid participant user_id", http.StatusBadRequest)
			return
		}
		entries = append(entries, &tournament.Participant{
			UserID:   id,
			Username: e.Username,
			Rating:   e.Rating,
			Status:   tournament.ParticipantActive,
		})
	}

	tr := s.Tournaments.Create(req.Name, tournament.Type(req.Type), entries)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tr)
}

// StartTournamentHandler activates a tournament and generates round 1.
func (s *Server) StartTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDFromPath(w, r, "/start")
	if !ok {
		return
	}

	tr, err := s.Tournaments.Start(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tr)
}

// AdvanceTournamentHandler closes the current round and pairs the next one
// (or completes the tournament). Refused while games are still scheduled.
func (s *Server) AdvanceTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDFromPath(w, r, "/advance")
	if !ok {
		return
	}

	tr, err := s.Tournaments.Advance(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tr)
}

// LaunchTournamentRoundHandler creates a live session for every scheduled
// game in the current round and seats both players. Responses map game ids to
// session codes.
func (s *Server) LaunchTournamentRoundHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDFromPath(w, r, "/launch")
	if !ok {
		return
	}
	tr, found := s.Tournaments.Get(id)
	if !found {
		http.Error(w, "tournament not found", http.StatusNotFound)
		return
	}

	var req struct {
		TimeControl string `json:"time_control"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	tc, err := clock.ParseTimeControl(req.TimeControl)
	if err != nil {
		http.Error(w, "invalid time control", http.StatusBadRequest)
		return
	}

	codes := make(map[string]string)
	for _, g := range tr.CurrentRoundGames() {
		if g.Status != tournament.GameScheduled {
			continue
		}
		sess, createErr := s.Registry.Create(tc)
		if createErr != nil {
			http.Error(w, "failed to allocate session", http.StatusServiceUnavailable)
			return
		}
		s.linkTournamentGame(sess, tr.ID, g.ID)
		s.seatSchedulerPlayers(sess, tr, g.WhiteID, g.BlackID)
		codes[g.ID.String()] = sess.Code
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sessions": codes})
}

// GetTournamentHandler returns the tournament including standings order.
func (s *Server) GetTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := tournamentIDFromPath(w, r, "")
	if !ok {
		return
	}
	tr, found := s.Tournaments.Get(id)
	if !found {
		http.Error(w, "tournament not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tournament": tr,
		"standings":  tr.Standings(),
	})
}

// seatSchedulerPlayers seats both scheduler-assigned players into a session,
// looking their display data up from the participant list when available.
func (s *Server) seatSchedulerPlayers(sess *session.Session, tr *tournament.Tournament, whiteID, blackID uuid.UUID) {
	for _, uid := range []uuid.UUID{whiteID, blackID} {
		p := &session.Participant{UserID: uid}
		for _, entrant := range tr.Participants {
			if entrant.UserID == uid {
				p.Username = entrant.Username
				p.Rating = entrant.Rating
				break
			}
		}
		if _, err := sess.Seat(p); err != nil {
			s.Logger.Errorf("tournament launch: seat %s in %s: %v", uid, sess.Code, err)
		}
	}
}

// tournamentIDFromPath parses /tournament/{id}{suffix}.
func tournamentIDFromPath(w http.ResponseWriter, r *http.Request, suffix string) (uuid.UUID, bool) {
	raw := strings.TrimPrefix(r.URL.Path, "/tournament/")
	raw = strings.TrimSuffix(raw, suffix)
	raw = strings.Trim(raw, "/")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid tournament id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
