// internal/handlers/server_test.go
package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/engine"
	"github.com/matchroom-gg/matchroom/internal/league"
	"github.com/matchroom-gg/matchroom/internal/matchmaking"
	"github.com/matchroom-gg/matchroom/internal/session"
	"github.com/matchroom-gg/matchroom/internal/tournament"
)

// stubEngine accepts every move; the server wiring tests never need real
// chess.
type stubEngine struct{}

func (e *stubEngine) NewPosition() engine.Position {
	return engine.Position{FEN: "stub/start", MovesUCI: []string{}}
}

func (e *stubEngine) ApplyMove(pos engine.Position, from, to, promotion string) (*engine.MoveResult, error) {
	moves := append(append([]string{}, pos.MovesUCI...), from+to+promotion)
	return &engine.MoveResult{
		Position:    engine.Position{FEN: "stub/after", MovesUCI: moves},
		UCI:         from + to + promotion,
		WhiteToMove: len(moves)%2 == 0,
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	reg := session.NewRegistry(&stubEngine{})
	srv := NewServer(reg, logger)
	srv.Persist = false
	return srv
}

func seatBoth(t *testing.T, sess *session.Session) (white, black uuid.UUID) {
	t.Helper()
	white, black = uuid.New(), uuid.New()
	_, err := sess.Seat(&session.Participant{UserID: white, Username: "w", Connected: true})
	require.NoError(t, err)
	_, err = sess.Seat(&session.Participant{UserID: black, Username: "b", Connected: true})
	require.NoError(t, err)
	return white, black
}

func TestPoolMatchCreatesSessionAndSeats(t *testing.T) {
	srv := newTestServer(t)
	tc, err := clock.ParseTimeControl("3+2")
	require.NoError(t, err)

	a := uuid.New()
	b := uuid.New()
	srv.Pool.Enqueue(&matchmaking.Ticket{UserID: a, Username: "a", TimeControl: tc})
	srv.Pool.Enqueue(&matchmaking.Ticket{UserID: b, Username: "b", TimeControl: tc})

	codeA, okA := srv.assignedCode(a)
	codeB, okB := srv.assignedCode(b)
	require.True(t, okA)
	require.True(t, okB)
	require.Equal(t, codeA, codeB)

	sess, found := srv.Registry.Get(codeA)
	require.True(t, found)
	sess.Mu.Lock()
	defer sess.Mu.Unlock()
	require.NotNil(t, sess.White)
	require.NotNil(t, sess.Black)
	require.Equal(t, a, sess.White.UserID, "earlier ticket takes white")
	require.Equal(t, b, sess.Black.UserID)
	require.False(t, sess.White.Connected, "pool seats are bound on WS connect")
	require.False(t, sess.Black.Connected, "pool seats are bound on WS connect")
}

func TestAssignedCodeConsumedOnRead(t *testing.T) {
	srv := newTestServer(t)
	tc, _ := clock.ParseTimeControl("1+0")

	a, b := uuid.New(), uuid.New()
	srv.Pool.Enqueue(&matchmaking.Ticket{UserID: a, TimeControl: tc})
	srv.Pool.Enqueue(&matchmaking.Ticket{UserID: b, TimeControl: tc})

	_, ok := srv.assignedCode(a)
	require.True(t, ok)
	_, ok = srv.assignedCode(a)
	require.False(t, ok, "assignment is consumed on first read")
}

func TestSettleReportsTournamentResult(t *testing.T) {
	srv := newTestServer(t)

	entries := []*tournament.Participant{
		{UserID: uuid.New(), Username: "p1", Rating: 1400, Status: tournament.ParticipantActive},
		{UserID: uuid.New(), Username: "p2", Rating: 1350, Status: tournament.ParticipantActive},
	}
	tr := srv.Tournaments.Create("weekly", tournament.TypeSwiss, entries)
	_, err := srv.Tournaments.Start(tr.ID)
	require.NoError(t, err)

	games := tr.CurrentRoundGames()
	require.Len(t, games, 1)
	game := games[0]

	tc, _ := clock.ParseTimeControl("3+0")
	sess, err := srv.Registry.Create(tc)
	require.NoError(t, err)
	srv.linkTournamentGame(sess, tr.ID, game.ID)
	seatBoth(t, sess)

	// Black resigns; white wins and the bracket hears about it.
	sess.Mu.Lock()
	blackID := sess.Black.UserID
	sess.Mu.Unlock()
	require.NoError(t, sess.Resign(blackID))

	require.Eventually(t, func() bool {
		return game.Status == tournament.GameCompleted
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, tournament.GameWhiteWon, game.Result)
}

func TestSettleReportsLeagueResultAsHomeAway(t *testing.T) {
	srv := newTestServer(t)

	entries := []*league.Participant{
		{UserID: uuid.New(), Username: "p1", Division: 1, Status: "active"},
		{UserID: uuid.New(), Username: "p2", Division: 1, Status: "active"},
	}
	lg := srv.Leagues.Create("season", league.FormatRoundRobin, 1, 0, 0, entries)
	_, err := srv.Leagues.Start(lg.ID)
	require.NoError(t, err)
	require.NotEmpty(t, lg.Matches)
	match := lg.Matches[0]

	tc, _ := clock.ParseTimeControl("3+0")
	sess, err := srv.Registry.Create(tc)
	require.NoError(t, err)
	srv.linkLeagueMatch(sess, lg.ID, match.ID)
	seatBoth(t, sess)

	// White (home) resigns, so away takes the points.
	sess.Mu.Lock()
	whiteID := sess.White.UserID
	sess.Mu.Unlock()
	require.NoError(t, sess.Resign(whiteID))

	require.Eventually(t, func() bool {
		return match.Status == league.MatchCompleted
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, league.MatchAwayWon, match.Result)
}

func TestCancelledSessionLeavesSchedulerGameScheduled(t *testing.T) {
	srv := newTestServer(t)

	entries := []*tournament.Participant{
		{UserID: uuid.New(), Username: "p1", Status: tournament.ParticipantActive},
		{UserID: uuid.New(), Username: "p2", Status: tournament.ParticipantActive},
	}
	tr := srv.Tournaments.Create("weekly", tournament.TypeSwiss, entries)
	_, err := srv.Tournaments.Start(tr.ID)
	require.NoError(t, err)
	game := tr.CurrentRoundGames()[0]

	tc, _ := clock.ParseTimeControl("3+0")
	sess, err := srv.Registry.Create(tc)
	require.NoError(t, err)
	srv.linkTournamentGame(sess, tr.ID, game.ID)
	seatBoth(t, sess)

	sess.Cancel()

	// Give the settle hook a beat to run; the game must stay scheduled.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, tournament.GameScheduled, game.Status)
}

func TestRematchSessionInheritsSettlePipeline(t *testing.T) {
	srv := newTestServer(t)

	tc, _ := clock.ParseTimeControl("3+0")
	sess, err := srv.Registry.Create(tc)
	require.NoError(t, err)
	seatBoth(t, sess)

	sess.Mu.Lock()
	whiteID := sess.White.UserID
	blackID := sess.Black.UserID
	sess.Mu.Unlock()
	require.NoError(t, sess.Resign(whiteID))

	require.NoError(t, sess.RequestRematch(whiteID))
	next, err := sess.AcceptRematch(blackID)
	require.NoError(t, err)

	next.Mu.Lock()
	defer next.Mu.Unlock()
	require.NotNil(t, next.OnSettle, "registry Configure must wire successors")
}
