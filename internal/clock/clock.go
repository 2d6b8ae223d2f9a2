// internal/clock/clock.go
package clock

import "time"

// Side identifies one of the two seats at the board.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Opponent returns the other side.
func Opponent(s Side) Side {
	if s == White {
		return Black
	}
	return White
}

// State is the authoritative clock for one session. Remaining time for the
// running side is computed lazily from LastUpdate rather than decremented by
// a timer, so reads are non-destructive and cheap.
//
// State carries no lock of its own; the owning session serializes access.
type State struct {
	WhiteMs     int64     `json:"white_ms"`
	BlackMs     int64     `json:"black_ms"`
	IncrementMs int64     `json:"increment_ms"`
	Running     Side      `json:"running,omitempty"` // empty when no clock is ticking
	LastUpdate  time.Time `json:"last_update"`
	Started     bool      `json:"started"`
	Untimed     bool      `json:"untimed"`
}

// NewState builds a stopped clock for the given time control.
func NewState(tc TimeControl) State {
	return State{
		WhiteMs:     tc.InitialMs(),
		BlackMs:     tc.InitialMs(),
		IncrementMs: tc.IncrementMs(),
		Untimed:     tc.Untimed,
	}
}

// Remaining reports both sides' remaining milliseconds at the given instant
// without mutating the state. The running side is charged for the real time
// elapsed since the last clock mutation, clamped at zero so a flagged side is
// never reported with negative time.
func (s *State) Remaining(now time.Time) (whiteMs, blackMs int64) {
	whiteMs, blackMs = s.WhiteMs, s.BlackMs
	if s.Untimed || !s.Started || s.Running == "" {
		return whiteMs, blackMs
	}
	elapsed := now.Sub(s.LastUpdate).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	switch s.Running {
	case White:
		whiteMs = max64(whiteMs-elapsed, 0)
	case Black:
		blackMs = max64(blackMs-elapsed, 0)
	}
	return whiteMs, blackMs
}

// OnFirstMove starts the clock after the opening ply: the side to move next
// begins spending time. The mover's budget is untouched.
func (s *State) OnFirstMove(now time.Time, toMove Side) {
	if s.Untimed || s.Started {
		return
	}
	s.Started = true
	s.Running = toMove
	s.LastUpdate = now
}

// OnMoveCompleted charges the mover for elapsed time, credits the increment,
// and hands the running clock to the opponent.
func (s *State) OnMoveCompleted(mover Side, now time.Time) {
	if s.Untimed || !s.Started {
		return
	}
	elapsed := now.Sub(s.LastUpdate).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	switch mover {
	case White:
		s.WhiteMs = max64(s.WhiteMs-elapsed, 0) + s.IncrementMs
	case Black:
		s.BlackMs = max64(s.BlackMs-elapsed, 0) + s.IncrementMs
	}
	s.Running = Opponent(mover)
	s.LastUpdate = now
}

// Stop freezes both sides at their computed remaining values and clears the
// running side. Called on every terminal transition so no further real time
// is silently deducted from a finished game.
func (s *State) Stop(now time.Time) {
	if s.Untimed {
		return
	}
	s.WhiteMs, s.BlackMs = s.Remaining(now)
	s.Running = ""
	s.LastUpdate = now
}

// Flagged reports whether the given side has exhausted its time at the given
// instant. Untimed or not-yet-started clocks can never flag.
func (s *State) Flagged(side Side, now time.Time) bool {
	if s.Untimed || !s.Started {
		return false
	}
	w, b := s.Remaining(now)
	if side == White {
		return w <= 0
	}
	return b <= 0
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
