// internal/league/league.go
package league

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Format selects single or double round robin.
type Format string

const (
	FormatRoundRobin       Format = "round_robin"
	FormatDoubleRoundRobin Format = "double_round_robin"
)

// Status of a league season.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// MatchStatus of one fixture.
type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchCompleted MatchStatus = "completed"
	MatchForfeit   MatchStatus = "forfeit"
)

// MatchResult from the home side's perspective.
type MatchResult string

const (
	MatchHomeWon MatchResult = "home_won"
	MatchAwayWon MatchResult = "away_won"
	MatchDraw    MatchResult = "draw"
)

const (
	pointsWin  = 3
	pointsDraw = 1

	// formLength bounds the recent-form string ("WDLWW").
	formLength = 5
)

var (
	ErrNotFound         = errors.New("league not found")
	ErrNotEnoughPlayers = errors.New("league needs at least two participants")
	ErrAlreadyStarted   = errors.New("league has already started")
	ErrMatchNotFound    = errors.New("league match not found")
	ErrMatchFinished    = errors.New("league match already has a result")
)

// Participant is one league entry within a division.
type Participant struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Rating   int       `json:"rating"`
	Division int       `json:"division"` // 1 is the top division
	Points   int       `json:"points"`
	Wins     int       `json:"wins"`
	Draws    int       `json:"draws"`
	Losses   int       `json:"losses"`
	// ScoreDiff is game points for minus game points against, the
	// goal-differential equivalent used as the second standings key.
	ScoreDiff int    `json:"score_diff"`
	Form      string `json:"form"`
	Status    string `json:"status"`
}

// Match is one fixture. Home/away ordering matters: a double round robin
// mirrors each pairing with the venues swapped.
type Match struct {
	ID     uuid.UUID   `json:"id"`
	Round  int         `json:"round"`
	HomeID uuid.UUID   `json:"home_id"`
	AwayID uuid.UUID   `json:"away_id"`
	Result MatchResult `json:"result,omitempty"`
	Status MatchStatus `json:"status"`
}

// League is one competition of (possibly) several divisions.
type League struct {
	ID              uuid.UUID      `json:"id"`
	Name            string         `json:"name"`
	Format          Format         `json:"format"`
	Status          Status         `json:"status"`
	Divisions       int            `json:"divisions"`
	PromotionCount  int            `json:"promotion_count"`
	RelegationCount int            `json:"relegation_count"`
	Participants    []*Participant `json:"participants"`
	Matches         []*Match       `json:"matches"`
}

// byeSentinel marks the empty slot appended for odd fields; pairings against
// it are skipped, giving exactly one sitting-out participant per round.
var byeSentinel = uuid.Nil

// GenerateFixtures builds the full round-robin schedule for the given
// participants using the circle method: position 0 stays fixed while every
// other position rotates one slot per round. n participants (bye included)
// yield n-1 rounds of n/2 pairings. A double round robin appends a mirrored
// second pass with home and away swapped.
func GenerateFixtures(ids []uuid.UUID, format Format) []*Match {
	ring := make([]uuid.UUID, len(ids))
	copy(ring, ids)
	if len(ring)%2 == 1 {
		ring = append(ring, byeSentinel)
	}
	n := len(ring)
	if n < 2 {
		return nil
	}

	var fixtures []*Match
	for round := 1; round <= n-1; round++ {
		for i := 0; i < n/2; i++ {
			home, away := ring[i], ring[n-1-i]
			if home == byeSentinel || away == byeSentinel {
				continue
			}
			// Alternate venues by round so the fixed seat does not host
			// every week.
			if round%2 == 0 {
				home, away = away, home
			}
			fixtures = append(fixtures, &Match{
				ID:     uuid.New(),
				Round:  round,
				HomeID: home,
				AwayID: away,
				Status: MatchScheduled,
			})
		}
		// Rotate all positions except the fixed seat 0.
		last := ring[n-1]
		copy(ring[2:], ring[1:n-1])
		ring[1] = last
	}

	if format == FormatDoubleRoundRobin {
		firstPass := len(fixtures)
		for i := 0; i < firstPass; i++ {
			m := fixtures[i]
			fixtures = append(fixtures, &Match{
				ID:     uuid.New(),
				Round:  m.Round + n - 1,
				HomeID: m.AwayID,
				AwayID: m.HomeID,
				Status: MatchScheduled,
			})
		}
	}
	return fixtures
}

// ReportResult records a match outcome and feeds both participants' points,
// counters, score differential and form.
func (l *League) ReportResult(matchID uuid.UUID, result MatchResult, forfeit bool) error {
	var match *Match
	for _, m := range l.Matches {
		if m.ID == matchID {
			match = m
			break
		}
	}
	if match == nil {
		return ErrMatchNotFound
	}
	if match.Status != MatchScheduled {
		return ErrMatchFinished
	}
	match.Result = result
	if forfeit {
		match.Status = MatchForfeit
	} else {
		match.Status = MatchCompleted
	}

	home := l.participant(match.HomeID)
	away := l.participant(match.AwayID)
	if home == nil || away == nil {
		return nil
	}
	switch result {
	case MatchHomeWon:
		home.Points += pointsWin
		home.Wins++
		home.ScoreDiff++
		away.Losses++
		away.ScoreDiff--
		home.pushForm('W')
		away.pushForm('L')
	case MatchAwayWon:
		away.Points += pointsWin
		away.Wins++
		away.ScoreDiff++
		home.Losses++
		home.ScoreDiff--
		away.pushForm('W')
		home.pushForm('L')
	case MatchDraw:
		home.Points += pointsDraw
		away.Points += pointsDraw
		home.Draws++
		away.Draws++
		home.pushForm('D')
		away.pushForm('D')
	}
	return nil
}

// pushForm appends one result letter, keeping only the most recent
// formLength outcomes.
func (p *Participant) pushForm(r byte) {
	p.Form += string(r)
	if len(p.Form) > formLength {
		p.Form = p.Form[len(p.Form)-formLength:]
	}
}

// DivisionStandings orders one division by points, then score differential,
// then win count, all descending.
func (l *League) DivisionStandings(division int) []*Participant {
	var out []*Participant
	for _, p := range l.Participants {
		if p.Division == division {
			out = append(out, p)
		}
	}
	sortStandings(out)
	return out
}

func sortStandings(ps []*Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.ScoreDiff != b.ScoreDiff {
			return a.ScoreDiff > b.ScoreDiff
		}
		return a.Wins > b.Wins
	})
}

// ProcessPromotionRelegation moves the top PromotionCount of every division
// below the top one division up, and the bottom RelegationCount of every
// division above the bottom one division down. A single-division league is
// untouched.
func (l *League) ProcessPromotionRelegation() {
	if l.Divisions <= 1 {
		return
	}
	// Promotions and relegations are decided on the standings before any
	// move is applied, so compute both sets first.
	type move struct {
		p  *Participant
		to int
	}
	var moves []move

	for div := 2; div <= l.Divisions; div++ {
		standings := l.DivisionStandings(div)
		for i := 0; i < l.PromotionCount && i < len(standings); i++ {
			moves = append(moves, move{standings[i], div - 1})
		}
	}
	for div := 1; div < l.Divisions; div++ {
		standings := l.DivisionStandings(div)
		for i := 0; i < l.RelegationCount && i < len(standings); i++ {
			moves = append(moves, move{standings[len(standings)-1-i], div + 1})
		}
	}
	for _, m := range moves {
		m.p.Division = m.to
	}
}

func (l *League) participant(id uuid.UUID) *Participant {
	for _, p := range l.Participants {
		if p.UserID == id {
			return p
		}
	}
	return nil
}

// Store holds every in-memory league, keyed by id.
type Store struct {
	mu      sync.Mutex
	leagues map[uuid.UUID]*League
}

func NewStore() *Store {
	return &Store{leagues: make(map[uuid.UUID]*League)}
}

// Create registers a pending league.
func (s *Store) Create(name string, format Format, divisions, promote, relegate int, entries []*Participant) *League {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &League{
		ID:              uuid.New(),
		Name:            name,
		Format:          format,
		Status:          StatusPending,
		Divisions:       divisions,
		PromotionCount:  promote,
		RelegationCount: relegate,
		Participants:    entries,
	}
	s.leagues[l.ID] = l
	return l
}

// Start generates the fixture list and activates the league.
func (s *Store) Start(id uuid.UUID) (*League, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[id]
	if !ok {
		return nil, ErrNotFound
	}
	if l.Status != StatusPending {
		return nil, ErrAlreadyStarted
	}
	if len(l.Participants) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	ids := make([]uuid.UUID, len(l.Participants))
	for i, p := range l.Participants {
		ids[i] = p.UserID
	}
	l.Matches = GenerateFixtures(ids, l.Format)
	l.Status = StatusActive
	return l, nil
}

// ReportResult records one match outcome.
func (s *Store) ReportResult(id, matchID uuid.UUID, result MatchResult, forfeit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[id]
	if !ok {
		return ErrNotFound
	}
	return l.ReportResult(matchID, result, forfeit)
}

// Get returns a league by id.
func (s *Store) Get(id uuid.UUID) (*League, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leagues[id]
	return l, ok
}
