// internal/tournament/tournament_test.go
package tournament

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(n int) []*Participant {
	out := make([]*Participant, n)
	for i := 0; i < n; i++ {
		out[i] = &Participant{
			UserID:   uuid.New(),
			Username: fmt.Sprintf("player-%d", i),
			Rating:   1200 + i*50,
			Status:   ParticipantActive,
		}
	}
	return out
}

func TestTotalRounds(t *testing.T) {
	assert.Equal(t, 3, TotalRounds(TypeSwiss, 8))
	assert.Equal(t, 4, TotalRounds(TypeSwiss, 9))
	assert.Equal(t, 3, TotalRounds(TypeKnockout, 5))
	assert.Equal(t, 7, TotalRounds(TypeRoundRobin, 8))
	assert.Equal(t, 1, TotalRounds(TypeArena, 100))
	assert.Equal(t, 0, TotalRounds(TypeSwiss, 1))
}

func TestStartNeedsTwoActiveParticipants(t *testing.T) {
	s := NewStore()
	ps := entries(2)
	ps[1].Status = ParticipantWithdrawn
	tr := s.Create("lonely", TypeSwiss, ps)

	_, err := s.Start(tr.ID)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	_, err = s.Start(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOddFieldGetsOneByePerRound(t *testing.T) {
	s := NewStore()
	tr := s.Create("club swiss", TypeSwiss, entries(5))
	_, err := s.Start(tr.ID)
	require.NoError(t, err)

	games := tr.CurrentRoundGames()
	assert.Len(t, games, 2, "5 active participants make 2 games")

	paired := make(map[uuid.UUID]bool)
	for _, g := range games {
		assert.False(t, paired[g.WhiteID], "participant paired twice")
		assert.False(t, paired[g.BlackID], "participant paired twice")
		paired[g.WhiteID] = true
		paired[g.BlackID] = true
	}

	byes := 0
	for _, p := range tr.Participants {
		if !paired[p.UserID] {
			byes++
			assert.Equal(t, 1.0, p.Score, "the bye is worth a full point")
			assert.Equal(t, 1, p.Wins)
			assert.Equal(t, 1, p.Byes)
		}
	}
	assert.Equal(t, 1, byes)
}

func TestWithdrawnParticipantsAreNotPaired(t *testing.T) {
	s := NewStore()
	ps := entries(6)
	ps[2].Status = ParticipantWithdrawn
	ps[4].Status = ParticipantDisqualified
	tr := s.Create("shrinking", TypeSwiss, ps)
	_, err := s.Start(tr.ID)
	require.NoError(t, err)

	games := tr.CurrentRoundGames()
	assert.Len(t, games, 2)
	for _, g := range games {
		assert.NotEqual(t, ps[2].UserID, g.WhiteID)
		assert.NotEqual(t, ps[2].UserID, g.BlackID)
		assert.NotEqual(t, ps[4].UserID, g.WhiteID)
		assert.NotEqual(t, ps[4].UserID, g.BlackID)
	}
}

func TestAdvanceRefusesUnfinishedRound(t *testing.T) {
	s := NewStore()
	tr := s.Create("swiss", TypeSwiss, entries(4))
	_, err := s.Start(tr.ID)
	require.NoError(t, err)

	_, err = s.Advance(tr.ID)
	assert.ErrorIs(t, err, ErrRoundUnfinished)

	for _, g := range tr.CurrentRoundGames() {
		require.NoError(t, s.ReportResult(tr.ID, g.ID, GameWhiteWon, false))
	}
	_, err = s.Advance(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, tr.Round)
}

func TestLaterRoundsPairBySortedStanding(t *testing.T) {
	s := NewStore()
	ps := entries(4)
	tr := s.Create("swiss", TypeSwiss, ps)
	_, err := s.Start(tr.ID)
	require.NoError(t, err)

	for _, g := range tr.CurrentRoundGames() {
		require.NoError(t, s.ReportResult(tr.ID, g.ID, GameWhiteWon, false))
	}
	_, err = s.Advance(tr.ID)
	require.NoError(t, err)

	// The two round-1 winners (score 1) must meet on board 1.
	round2 := tr.CurrentRoundGames()
	require.Len(t, round2, 2)
	top := round2[0]
	assert.Equal(t, 1.0, scoreOf(t, tr, top.WhiteID))
	assert.Equal(t, 1.0, scoreOf(t, tr, top.BlackID))
}

func scoreOf(t *testing.T, tr *Tournament, id uuid.UUID) float64 {
	t.Helper()
	p := tr.participant(id)
	require.NotNil(t, p)
	return p.Score
}

func TestBuchholzIsSumOfOpponentsCurrentScores(t *testing.T) {
	tr := &Tournament{Type: TypeSwiss, Status: StatusActive, Round: 1}
	a := &Participant{UserID: uuid.New(), Username: "a", Status: ParticipantActive}
	b := &Participant{UserID: uuid.New(), Username: "b", Status: ParticipantActive}
	c := &Participant{UserID: uuid.New(), Username: "c", Status: ParticipantActive}
	d := &Participant{UserID: uuid.New(), Username: "d", Status: ParticipantActive}
	tr.Participants = []*Participant{a, b, c, d}
	tr.Games = []*Game{
		{ID: uuid.New(), Round: 1, WhiteID: a.UserID, BlackID: b.UserID, Status: GameScheduled},
		{ID: uuid.New(), Round: 1, WhiteID: c.UserID, BlackID: d.UserID, Status: GameScheduled},
	}
	require.NoError(t, tr.ReportResult(tr.Games[0].ID, GameWhiteWon, false))
	require.NoError(t, tr.ReportResult(tr.Games[1].ID, GameDraw, false))

	tr.CalculateBuchholz()
	assert.Equal(t, 0.0, a.Buchholz, "a's only opponent b has score 0")
	assert.Equal(t, 1.0, b.Buchholz, "b's only opponent a has score 1")
	assert.Equal(t, 0.5, c.Buchholz)
	assert.Equal(t, 0.5, d.Buchholz)

	// A later score change for a must only move the Buchholz of players who
	// faced a.
	a.Score = 2
	tr.CalculateBuchholz()
	assert.Equal(t, 2.0, b.Buchholz)
	assert.Equal(t, 0.5, c.Buchholz, "c never played a")
	assert.Equal(t, 0.5, d.Buchholz, "d never played a")
}

func TestByeContributesNoOpponentToBuchholz(t *testing.T) {
	s := NewStore()
	tr := s.Create("odd swiss", TypeSwiss, entries(3))
	_, err := s.Start(tr.ID)
	require.NoError(t, err)

	require.Len(t, tr.CurrentRoundGames(), 1)
	g := tr.CurrentRoundGames()[0]
	require.NoError(t, s.ReportResult(tr.ID, g.ID, GameDraw, false))
	tr.CalculateBuchholz()

	for _, p := range tr.Participants {
		if p.Byes == 1 {
			assert.Equal(t, 0.0, p.Buchholz, "a bye adds no opponent score")
		}
	}
}

func TestTournamentCompletesAfterFinalRound(t *testing.T) {
	s := NewStore()
	tr := s.Create("mini", TypeSwiss, entries(2))
	_, err := s.Start(tr.ID)
	require.NoError(t, err)
	require.Equal(t, 1, TotalRounds(TypeSwiss, 2))

	g := tr.CurrentRoundGames()[0]
	require.NoError(t, s.ReportResult(tr.ID, g.ID, GameBlackWon, false))
	_, err = s.Advance(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, tr.Status)
}

func TestReportResultGuards(t *testing.T) {
	s := NewStore()
	tr := s.Create("guards", TypeSwiss, entries(2))
	_, err := s.Start(tr.ID)
	require.NoError(t, err)

	g := tr.CurrentRoundGames()[0]
	require.NoError(t, s.ReportResult(tr.ID, g.ID, GameWhiteWon, false))
	assert.ErrorIs(t, s.ReportResult(tr.ID, g.ID, GameWhiteWon, false), ErrGameFinished)
	assert.ErrorIs(t, s.ReportResult(tr.ID, uuid.New(), GameWhiteWon, false), ErrGameNotFound)
}
