// internal/handlers/league.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/league"
	"github.com/matchroom-gg/matchroom/internal/session"
)

type createLeagueRequest struct {
	Name         string        `json:"name"`
	Format       string        `json:"format"`
	Divisions    int           `json:"divisions"`
	Promote      int           `json:"promote"`
	Relegate     int           `json:"relegate"`
	Participants []leagueEntry `json:"participants"`
}

type leagueEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Division int    `json:"division"`
}

// CreateLeagueHandler registers a pending league season.
func (s *Server) CreateLeagueHandler(w http.ResponseWriter, r *http.Request) {
	var req createLeagueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	entries := make([]*league.Participant, 0, len(req.Participants))
	for _, e := range req.Participants {
		id, err := uuid.Parse(e.UserID)
		if err != nil {
			http.Error(w, "invalid participant user_id", http.StatusBadRequest)
			return
		}
		entries = append(entries, &league.Participant{
			UserID:   id,
			Username: e.Username,
			Rating:   e.Rating,
			Division: e.Division,
			Status:   "active",
		})
	}

	lg := s.Leagues.Create(req.Name, league.Format(req.Format), req.Divisions, req.Promote, req.Relegate, entries)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(lg)
}

// StartLeagueHandler generates the season fixture list and activates it.
func (s *Server) StartLeagueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDFromPath(w, r, "/start")
	if !ok {
		return
	}

	lg, err := s.Leagues.Start(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lg)
}

// LaunchLeagueRoundHandler creates a live session for every scheduled fixture
// in the requested round, seating the home side as white.
func (s *Server) LaunchLeagueRoundHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDFromPath(w, r, "/launch")
	if !ok {
		return
	}
	lg, found := s.Leagues.Get(id)
	if !found {
		http.Error(w, "league not found", http.StatusNotFound)
		return
	}

	var req struct {
		Round       int    `json:"round"`
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
	for _, m := range lg.Matches {
		if m.Round != req.Round || m.Status != league.MatchScheduled {
			continue
		}
		sess, createErr := s.Registry.Create(tc)
		if createErr != nil {
			http.Error(w, "failed to allocate session", http.StatusServiceUnavailable)
			return
		}
		s.linkLeagueMatch(sess, lg.ID, m.ID)
		s.seatLeaguePlayers(sess, lg, m.HomeID, m.AwayID)
		codes[m.ID.String()] = sess.Code
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sessions": codes})
}

// PromoteLeagueHandler applies end-of-season promotion and relegation.
func (s *Server) PromoteLeagueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDFromPath(w, r, "/promote")
	if !ok {
		return
	}
	lg, found := s.Leagues.Get(id)
	if !found {
		http.Error(w, "league not found", http.StatusNotFound)
		return
	}

	lg.ProcessPromotionRelegation()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lg)
}

// GetLeagueHandler returns the league with per-division standings.
func (s *Server) GetLeagueHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDFromPath(w, r, "")
	if !ok {
		return
	}
	lg, found := s.Leagues.Get(id)
	if !found {
		http.Error(w, "league not found", http.StatusNotFound)
		return
	}

	standings := make(map[int][]*league.Participant, lg.Divisions)
	for d := 1; d <= lg.Divisions; d++ {
		standings[d] = lg.DivisionStandings(d)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"league":    lg,
		"standings": standings,
	})
}

func (s *Server) seatLeaguePlayers(sess *session.Session, lg *league.League, homeID, awayID uuid.UUID) {
	for _, uid := range []uuid.UUID{homeID, awayID} {
		p := &session.Participant{UserID: uid}
		for _, entrant := range lg.Participants {
			if entrant.UserID == uid {
				p.Username = entrant.Username
				p.Rating = entrant.Rating
				break
			}
		}
		if _, err := sess.Seat(p); err != nil {
			s.Logger.Errorf("league launch: seat %s in %s: %v", uid, sess.Code, err)
		}
	}
}

// leagueIDFromPath parses /league/{id}{suffix}.
func leagueIDFromPath(w http.ResponseWriter, r *http.Request, suffix string) (uuid.UUID, bool) {
	raw := strings.TrimPrefix(r.URL.Path, "/league/")
	raw = strings.TrimSuffix(raw, suffix)
	raw = strings.Trim(raw, "/")
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid league id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
