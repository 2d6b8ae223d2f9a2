// internal/handlers/server.go
package handlers

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/matchroom-gg/matchroom/internal/cache"
	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/database"
	"github.com/matchroom-gg/matchroom/internal/league"
	"github.com/matchroom-gg/matchroom/internal/matchmaking"
	"github.com/matchroom-gg/matchroom/internal/session"
	"github.com/matchroom-gg/matchroom/internal/tournament"
)

// Server is the top-level wiring for the HTTP/WS surface. It owns the session
// registry, matchmaking pool, and both schedulers, and installs the settle
// pipeline (persistence, ratings, scheduler reporting, event stream) on every
// session the registry creates.
type Server struct {
	Registry    *session.Registry
	Pool        *matchmaking.Pool
	Tournaments *tournament.Store
	Leagues     *league.Store
	Logger      *log.Logger

	// Persist toggles the DB/Redis side effects so tests can run the wiring
	// without infrastructure.
	Persist bool

	mu           sync.Mutex
	assigned     map[uuid.UUID]string    // userID -> session code from matchmaking
	matchIDs     map[string]uuid.UUID    // session code -> match row id
	tournamentOf map[uuid.UUID]uuid.UUID // tournament game id -> tournament id
	leagueOf     map[uuid.UUID]uuid.UUID // league match id -> league id
	wsConns      map[string]*connSet     // session code -> live connections
}

// NewServer builds a Server around an existing registry and hooks the settle
// pipeline into it.
func NewServer(reg *session.Registry, logger *log.Logger) *Server {
	s := &Server{
		Registry:    reg,
		Pool:        matchmaking.NewPool(),
		Tournaments: tournament.NewStore(),
		Leagues:     league.NewStore(),
		Logger:      logger,
		Persist:      true,
		assigned:     make(map[uuid.UUID]string),
		matchIDs:     make(map[string]uuid.UUID),
		tournamentOf: make(map[uuid.UUID]uuid.UUID),
		leagueOf:     make(map[uuid.UUID]uuid.UUID),
		wsConns:      make(map[string]*connSet),
	}
	reg.Configure = s.configureSession
	s.Pool.OnMatch = s.onPoolMatch
	return s
}

// configureSession runs for every session the registry hands out, including
// rematch successors, so they all report through the same settle pipeline.
func (s *Server) configureSession(sess *session.Session) {
	sess.OnSettle = s.onSettle
}

// onPoolMatch turns a matchmaking pairing into a live session and seats both
// players. The earlier-queued ticket takes white.
func (s *Server) onPoolMatch(a, b *matchmaking.Ticket, tc clock.TimeControl) {
	sess, err := s.Registry.Create(tc)
	if err != nil {
		s.Logger.Errorf("matchmaking: failed to create session: %v", err)
		return
	}

	for _, t := range []*matchmaking.Ticket{a, b} {
		_, err := sess.Seat(&session.Participant{
			UserID:    t.UserID,
			Username:  t.Username,
			Rating:    t.Rating,
			Ephemeral: t.Ephemeral,
			Connected: false, // seated by the pool, bound on WS connect
		})
		if err != nil {
			s.Logger.Errorf("matchmaking: failed to seat %s in %s: %v", t.UserID, sess.Code, err)
		}
	}

	s.mu.Lock()
	s.assigned[a.UserID] = sess.Code
	s.assigned[b.UserID] = sess.Code
	s.mu.Unlock()

	s.Logger.Infof("matchmaking: paired %s vs %s in session %s (%s)",
		a.UserID, b.UserID, sess.Code, tc.String())
}

// assignedCode returns (and consumes) a matchmaking assignment for the user.
func (s *Server) assignedCode(userID uuid.UUID) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.assigned[userID]
	if ok {
		delete(s.assigned, userID)
	}
	return code, ok
}

// matchIDFor returns a stable match row id for a session code.
func (s *Server) matchIDFor(code string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.matchIDs[code]
	if !ok {
		id = uuid.New()
		s.matchIDs[code] = id
	}
	return id
}

// linkTournamentGame ties a session to a tournament game so its settle report
// is routed back to the right bracket.
func (s *Server) linkTournamentGame(sess *session.Session, trID, gameID uuid.UUID) {
	sess.Mu.Lock()
	sess.TournamentGameID = &gameID
	sess.Mu.Unlock()

	s.mu.Lock()
	s.tournamentOf[gameID] = trID
	s.mu.Unlock()
}

// linkLeagueMatch ties a session to a league fixture.
func (s *Server) linkLeagueMatch(sess *session.Session, lgID, matchID uuid.UUID) {
	sess.Mu.Lock()
	sess.LeagueMatchID = &matchID
	sess.Mu.Unlock()

	s.mu.Lock()
	s.leagueOf[matchID] = lgID
	s.mu.Unlock()
}

// onSettle is the single exit point for every finished session: match record,
// rating commit for rated games, scheduler reporting, and the event stream.
// It runs off the session lock.
func (s *Server) onSettle(rep session.SettleReport) {
	s.Logger.WithFields(log.Fields{
		"session": rep.Code,
		"result":  rep.Result,
		"reason":  rep.Reason,
	}).Info("session settled")

	if rep.TournamentGameID != nil {
		if err := s.reportTournamentResult(rep); err != nil {
			s.Logger.Errorf("settle %s: tournament report: %v", rep.Code, err)
		}
	}
	if rep.LeagueMatchID != nil {
		if err := s.reportLeagueResult(rep); err != nil {
			s.Logger.Errorf("settle %s: league report: %v", rep.Code, err)
		}
	}

	if !s.Persist {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	matchID := s.matchIDFor(rep.Code)
	err := database.FinishMatchRecord(ctx, matchID, rep.Code,
		string(rep.Result), rep.Reason, rep.FinalFEN, rep.MovesUCI)
	if err != nil {
		s.Logger.Errorf("settle %s: finish match record: %v", rep.Code, err)
	}

	if rated(rep) {
		whiteScore, scoreErr := session.ScoreFor(rep.Result, clock.White)
		if scoreErr == nil {
			if _, err := database.CommitMatchRatings(ctx, matchID,
				rep.White.UserID, rep.Black.UserID, whiteScore); err != nil {
				s.Logger.Errorf("settle %s: rating commit: %v", rep.Code, err)
			}
		}
	}

	if cache.Rdb != nil {
		ev := cache.MatchEventRecord{
			SessionCode: rep.Code,
			SeqIndex:    len(rep.MovesUCI),
			EventType:   "settled",
			EventPayload: map[string]interface{}{
				"result": string(rep.Result),
				"reason": rep.Reason,
			},
			Timestamp: time.Now().UnixMilli(),
		}
		if err := cache.PublishMatchEvent(ctx, ev); err != nil {
			s.Logger.Warnf("settle %s: event publish: %v", rep.Code, err)
		}
	}
}

// rated means both seats held registered (non-ephemeral) users and the game
// actually produced a result. Cancelled sessions never touch ratings.
func rated(rep session.SettleReport) bool {
	if rep.Result == session.ResultCancelled {
		return false
	}
	if rep.White == nil || rep.Black == nil {
		return false
	}
	return !rep.White.Ephemeral && !rep.Black.Ephemeral
}

func (s *Server) reportTournamentResult(rep session.SettleReport) error {
	var res tournament.GameResult
	switch rep.Result {
	case session.ResultWhiteWon:
		res = tournament.GameWhiteWon
	case session.ResultBlackWon:
		res = tournament.GameBlackWon
	case session.ResultDraw:
		res = tournament.GameDraw
	default:
		return nil // cancelled games stay scheduled
	}

	s.mu.Lock()
	trID, ok := s.tournamentOf[*rep.TournamentGameID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Tournaments.ReportResult(trID, *rep.TournamentGameID, res, false)
}

// reportLeagueResult translates the session outcome into the league's
// home/away vocabulary; white plays at home.
func (s *Server) reportLeagueResult(rep session.SettleReport) error {
	var res league.MatchResult
	switch rep.Result {
	case session.ResultWhiteWon:
		res = league.MatchHomeWon
	case session.ResultBlackWon:
		res = league.MatchAwayWon
	case session.ResultDraw:
		res = league.MatchDraw
	default:
		return nil
	}

	s.mu.Lock()
	lgID, ok := s.leagueOf[*rep.LeagueMatchID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Leagues.ReportResult(lgID, *rep.LeagueMatchID, res, false)
}
