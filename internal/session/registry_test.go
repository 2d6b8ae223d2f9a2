// internal/session/registry_test.go
package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchroom-gg/matchroom/internal/clock"
)

func testTC(t *testing.T) clock.TimeControl {
	t.Helper()
	tc, err := clock.ParseTimeControl("5+0")
	require.NoError(t, err)
	return tc
}

func TestRegistryCreatesUniqueCodes(t *testing.T) {
	r := NewRegistry(&stubEngine{})
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		s, err := r.Create(testTC(t))
		require.NoError(t, err)
		require.Len(t, s.Code, codeLength)
		for _, c := range s.Code {
			assert.Contains(t, codeAlphabet, string(c))
		}
		assert.False(t, seen[s.Code], "code %s allocated twice", s.Code)
		seen[s.Code] = true
	}
	assert.Equal(t, 200, r.Len())
}

func TestRegistryLookupAndRemove(t *testing.T) {
	r := NewRegistry(&stubEngine{})
	s, err := r.Create(testTC(t))
	require.NoError(t, err)

	got, ok := r.Get(s.Code)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.Get("NOSUCH")
	assert.False(t, ok)

	r.Remove(s.Code)
	_, ok = r.Get(s.Code)
	assert.False(t, ok)
}

func TestRemoveIfEmptyKeepsOccupiedSessions(t *testing.T) {
	r := NewRegistry(&stubEngine{})
	s, err := r.Create(testTC(t))
	require.NoError(t, err)

	p := &Participant{UserID: uuid.New(), Username: "anna", Connected: true}
	_, err = s.Seat(p)
	require.NoError(t, err)

	assert.False(t, r.RemoveIfEmpty(s.Code), "occupied sessions stay registered")

	s.HandleDisconnect(p.UserID)
	assert.True(t, r.RemoveIfEmpty(s.Code))
	_, ok := r.Get(s.Code)
	assert.False(t, ok)
}

func TestRemoveIfEmptySettlesAbandonedActiveSessions(t *testing.T) {
	r := NewRegistry(&stubEngine{})
	s, err := r.Create(testTC(t))
	require.NoError(t, err)

	white := &Participant{UserID: uuid.New(), Username: "anna", Connected: true}
	black := &Participant{UserID: uuid.New(), Username: "bo", Connected: true}
	_, err = s.Seat(white)
	require.NoError(t, err)
	_, err = s.Seat(black)
	require.NoError(t, err)
	require.Equal(t, StateActive, s.State)

	// Both players walk away before the first move; eviction must not
	// strand a live session with its clock watch still running.
	s.HandleDisconnect(white.UserID)
	s.HandleDisconnect(black.UserID)
	require.True(t, r.RemoveIfEmpty(s.Code))

	assert.True(t, s.Terminal())
	assert.Equal(t, ResultCancelled, s.Result)

	s.Mu.Lock()
	defer s.Mu.Unlock()
	assert.Nil(t, s.watchDone, "clock watch must be stopped on eviction")
}

func TestReapIdleOnlyEvictsEmptyTerminalSessions(t *testing.T) {
	r := NewRegistry(&stubEngine{})

	// Finished and abandoned: reapable.
	done, err := r.Create(testTC(t))
	require.NoError(t, err)
	done.Cancel()

	// Finished but still watched: stays.
	watched, err := r.Create(testTC(t))
	require.NoError(t, err)
	watched.Cancel()
	watched.Spectate(uuid.New())

	// Live and occupied: stays.
	live, err := r.Create(testTC(t))
	require.NoError(t, err)
	_, err = live.Seat(&Participant{UserID: uuid.New(), Username: "bo", Connected: true})
	require.NoError(t, err)

	assert.Equal(t, 1, r.ReapIdle())
	_, ok := r.Get(done.Code)
	assert.False(t, ok)
	_, ok = r.Get(watched.Code)
	assert.True(t, ok)
	_, ok = r.Get(live.Code)
	assert.True(t, ok)
}

func TestRematchSwapsColorsAndResetsClock(t *testing.T) {
	r := NewRegistry(&stubEngine{})
	s, err := r.Create(testTC(t))
	require.NoError(t, err)

	whiteP := &Participant{UserID: uuid.New(), Username: "anna", Rating: 1300, Connected: true}
	blackP := &Participant{UserID: uuid.New(), Username: "bo", Rating: 1250, Connected: true}
	_, err = s.Seat(whiteP)
	require.NoError(t, err)
	_, err = s.Seat(blackP)
	require.NoError(t, err)

	require.NoError(t, s.Resign(whiteP.UserID))
	require.Equal(t, StateCompleted, s.State)

	require.NoError(t, s.RequestRematch(whiteP.UserID))
	assert.ErrorIs(t, s.DeclineRematch(whiteP.UserID), ErrOwnOffer)

	next, err := s.AcceptRematch(blackP.UserID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, s.Code, next.Code)

	// Sides swapped, clock reset, session active right away.
	assert.Equal(t, blackP.UserID, next.White.UserID)
	assert.Equal(t, whiteP.UserID, next.Black.UserID)
	assert.Equal(t, StateActive, next.State)
	assert.False(t, next.Clock.Started)
	assert.Empty(t, next.Position.MovesUCI)

	// The original session is untouched apart from the cleared request.
	assert.Equal(t, StateCompleted, s.State)
	assert.Equal(t, ResultBlackWon, s.Result)
	assert.False(t, s.RematchOffer.Pending)

	_, ok := r.Get(next.Code)
	assert.True(t, ok, "the rematch session is registered")
}

func TestRematchRequiresFinishedSession(t *testing.T) {
	r := NewRegistry(&stubEngine{})
	s, err := r.Create(testTC(t))
	require.NoError(t, err)

	p := &Participant{UserID: uuid.New(), Username: "anna"}
	_, err = s.Seat(p)
	require.NoError(t, err)

	assert.ErrorIs(t, s.RequestRematch(p.UserID), ErrNotActive)
}
