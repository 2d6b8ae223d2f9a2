// internal/tournament/tournament.go
package tournament

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Type selects the pairing format.
type Type string

const (
	TypeSwiss      Type = "swiss"
	TypeKnockout   Type = "knockout"
	TypeRoundRobin Type = "round_robin"
	TypeArena      Type = "arena"
)

// Status of a tournament as a whole.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ParticipantStatus tracks whether a participant still gets paired.
type ParticipantStatus string

const (
	ParticipantActive       ParticipantStatus = "active"
	ParticipantWithdrawn    ParticipantStatus = "withdrawn"
	ParticipantDisqualified ParticipantStatus = "disqualified"
)

// GameStatus of a single scheduled pairing.
type GameStatus string

const (
	GameScheduled GameStatus = "scheduled"
	GameCompleted GameStatus = "completed"
	GameForfeit   GameStatus = "forfeit"
)

// GameResult of a completed pairing, from white's perspective.
type GameResult string

const (
	GameWhiteWon GameResult = "white_won"
	GameBlackWon GameResult = "black_won"
	GameDraw     GameResult = "draw"
)

var (
	ErrNotEnoughPlayers = errors.New("tournament needs at least two active participants")
	ErrAlreadyStarted   = errors.New("tournament has already started")
	ErrNotStarted       = errors.New("tournament has not started")
	ErrRoundUnfinished  = errors.New("current round still has unfinished games")
	ErrGameNotFound     = errors.New("tournament game not found")
	ErrGameFinished     = errors.New("tournament game already has a result")
)

// Participant is one tournament entry. Score is the sum of round outcomes
// (1 / 0.5 / 0); Buchholz is recomputed, never incrementally maintained.
type Participant struct {
	UserID   uuid.UUID         `json:"user_id"`
	Username string            `json:"username"`
	Rating   int               `json:"rating"`
	Score    float64           `json:"score"`
	Buchholz float64           `json:"buchholz"`
	Wins     int               `json:"wins"`
	Draws    int               `json:"draws"`
	Losses   int               `json:"losses"`
	Byes     int               `json:"byes"`
	Status   ParticipantStatus `json:"status"`
}

// Game is one scheduled pairing within a round.
type Game struct {
	ID      uuid.UUID  `json:"id"`
	Round   int        `json:"round"`
	Board   int        `json:"board"`
	WhiteID uuid.UUID  `json:"white_id"`
	BlackID uuid.UUID  `json:"black_id"`
	Result  GameResult `json:"result,omitempty"`
	Status  GameStatus `json:"status"`
}

// Tournament is the scheduler state for one event. Access is serialized by
// the owning Store.
type Tournament struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Type         Type           `json:"type"`
	Status       Status         `json:"status"`
	Round        int            `json:"round"`
	Participants []*Participant `json:"participants"`
	Games        []*Game        `json:"games"`
}

// TotalRounds returns the round count for a format and field size: Swiss and
// knockout run ceil(log2(n)) rounds, round robin n-1, and an arena is
// time-boxed rather than round-boxed so it counts as a single rolling round.
func TotalRounds(t Type, n int) int {
	switch t {
	case TypeRoundRobin:
		if n < 2 {
			return 0
		}
		return n - 1
	case TypeArena:
		return 1
	default: // swiss, knockout
		if n < 2 {
			return 0
		}
		return int(math.Ceil(math.Log2(float64(n))))
	}
}

// Start shuffles round 1 pairings and activates the tournament.
func (tr *Tournament) Start() error {
	if tr.Status != StatusPending {
		return ErrAlreadyStarted
	}
	if len(tr.activeParticipants()) < 2 {
		return ErrNotEnoughPlayers
	}
	tr.Status = StatusActive
	tr.Round = 1
	tr.generatePairings()
	return nil
}

// generatePairings produces the games for the current round over active
// participants. Round 1 pairs after a uniform random shuffle; later rounds
// sort by (score, Buchholz, rating) descending and pair adjacent entries.
// This deliberately skips color balancing and rematch avoidance; the
// simplified order is part of the scheduler's contract.
func (tr *Tournament) generatePairings() {
	active := tr.activeParticipants()

	if tr.Round <= 1 {
		rand.Shuffle(len(active), func(i, j int) {
			active[i], active[j] = active[j], active[i]
		})
	} else {
		sort.SliceStable(active, func(i, j int) bool {
			a, b := active[i], active[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			if a.Buchholz != b.Buchholz {
				return a.Buchholz > b.Buchholz
			}
			return a.Rating > b.Rating
		})
	}

	board := 0
	for i := 0; i+1 < len(active); i += 2 {
		board++
		tr.Games = append(tr.Games, &Game{
			ID:      uuid.New(),
			Round:   tr.Round,
			Board:   board,
			WhiteID: active[i].UserID,
			BlackID: active[i+1].UserID,
			Status:  GameScheduled,
		})
	}

	// Odd field: the last-sorted participant sits out with a full point.
	if len(active)%2 == 1 {
		bye := active[len(active)-1]
		bye.Score++
		bye.Wins++
		bye.Byes++
	}
}

// CurrentRoundGames returns the games scheduled for the current round.
func (tr *Tournament) CurrentRoundGames() []*Game {
	var out []*Game
	for _, g := range tr.Games {
		if g.Round == tr.Round {
			out = append(out, g)
		}
	}
	return out
}

// ReportResult records the outcome of one game and updates both scores.
func (tr *Tournament) ReportResult(gameID uuid.UUID, result GameResult, forfeit bool) error {
	var game *Game
	for _, g := range tr.Games {
		if g.ID == gameID {
			game = g
			break
		}
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != GameScheduled {
		return ErrGameFinished
	}
	game.Result = result
	if forfeit {
		game.Status = GameForfeit
	} else {
		game.Status = GameCompleted
	}

	white := tr.participant(game.WhiteID)
	black := tr.participant(game.BlackID)
	if white == nil || black == nil {
		return nil
	}
	switch result {
	case GameWhiteWon:
		white.Score++
		white.Wins++
		black.Losses++
	case GameBlackWon:
		black.Score++
		black.Wins++
		white.Losses++
	case GameDraw:
		white.Score += 0.5
		black.Score += 0.5
		white.Draws++
		black.Draws++
	}
	return nil
}

// CalculateBuchholz recomputes every participant's tiebreak from scratch:
// the sum of the current scores of each opponent they have finished a game
// against. Byes contribute no opponent. Recomputation is deliberate —
// opponents' scores move after every round, so a cached value goes stale.
func (tr *Tournament) CalculateBuchholz() {
	scores := make(map[uuid.UUID]float64, len(tr.Participants))
	for _, p := range tr.Participants {
		scores[p.UserID] = p.Score
	}
	sums := make(map[uuid.UUID]float64, len(tr.Participants))
	for _, g := range tr.Games {
		if g.Status == GameScheduled {
			continue
		}
		sums[g.WhiteID] += scores[g.BlackID]
		sums[g.BlackID] += scores[g.WhiteID]
	}
	for _, p := range tr.Participants {
		p.Buchholz = sums[p.UserID]
	}
}

// AdvanceRound closes the current round and opens the next one, or marks the
// tournament completed once the round counter reaches TotalRounds. It
// refuses to advance while any game of the round is still scheduled.
func (tr *Tournament) AdvanceRound() error {
	if tr.Status != StatusActive {
		return ErrNotStarted
	}
	for _, g := range tr.CurrentRoundGames() {
		if g.Status == GameScheduled {
			return ErrRoundUnfinished
		}
	}
	tr.CalculateBuchholz()

	if tr.Round >= TotalRounds(tr.Type, len(tr.Participants)) {
		tr.Status = StatusCompleted
		return nil
	}
	tr.Round++
	tr.generatePairings()
	return nil
}

// Standings returns participants ordered by score, Buchholz, then rating.
func (tr *Tournament) Standings() []*Participant {
	out := make([]*Participant, len(tr.Participants))
	copy(out, tr.Participants)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Buchholz != b.Buchholz {
			return a.Buchholz > b.Buchholz
		}
		return a.Rating > b.Rating
	})
	return out
}

func (tr *Tournament) participant(id uuid.UUID) *Participant {
	for _, p := range tr.Participants {
		if p.UserID == id {
			return p
		}
	}
	return nil
}

func (tr *Tournament) activeParticipants() []*Participant {
	var out []*Participant
	for _, p := range tr.Participants {
		if p.Status == ParticipantActive {
			out = append(out, p)
		}
	}
	return out
}
