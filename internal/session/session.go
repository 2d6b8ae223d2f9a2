// internal/session/session.go
package session

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/engine"
)

// clockTickInterval is the period of the autonomous timeout sweep per
// session: fine enough for a smooth clock display, coarse enough to avoid
// busy looping.
const clockTickInterval = 100 * time.Millisecond

// State is the lifecycle state of a session. Terminal states are final; no
// operation may mutate a session once it is terminal.
type State string

const (
	StatePending   State = "pending" // slots not yet full
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Result is the settled outcome of a session.
type Result string

const (
	ResultWhiteWon  Result = "white_won"
	ResultBlackWon  Result = "black_won"
	ResultDraw      Result = "draw"
	ResultCancelled Result = "cancelled"
)

// End reasons produced by this package; the rules engine contributes its own
// (checkmate, stalemate, ...).
const (
	ReasonTimeout     = "timeout"
	ReasonResignation = "resignation"
	ReasonDrawAgreed  = "draw_agreed"
	ReasonCancelled   = "cancelled"
)

// Rejected-action and not-found sentinels. These are reported to the
// originator only and never mutate session state.
var (
	ErrNotActive       = errors.New("session is not active")
	ErrSessionTerminal = errors.New("session has already finished")
	ErrNotSeated       = errors.New("spectators cannot perform this action")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrFlagFell        = errors.New("time forfeit")
	ErrOfferPending    = errors.New("an offer is already pending")
	ErrNoPendingOffer  = errors.New("no offer is pending")
	ErrOwnOffer        = errors.New("cannot act on your own offer")
	ErrSessionFull     = errors.New("both seats are taken")
	ErrNoRematchHook   = errors.New("rematch is not available here")
)

// Participant is one occupant of a seat. Ephemeral participants (guests)
// are excluded from rating updates.
type Participant struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Rating    int       `json:"rating"`
	Ephemeral bool      `json:"ephemeral"`
	Connected bool      `json:"connected"`
}

// Offer is a pending draw or rematch proposal attributed to one side:
// either nothing is pending, or exactly one side has an open offer.
type Offer struct {
	Pending bool       `json:"pending"`
	By      clock.Side `json:"by,omitempty"`
}

func (o *Offer) open(side clock.Side) { o.Pending, o.By = true, side }
func (o *Offer) clear()               { *o = Offer{} }

// EventType labels broadcast session events.
type EventType string

const (
	EventPlayerJoined    EventType = "player_joined"
	EventPlayerLeft      EventType = "player_left"
	EventSessionStarted  EventType = "session_started"
	EventMoveApplied     EventType = "move_applied"
	EventDrawOffered     EventType = "draw_offered"
	EventDrawDeclined    EventType = "draw_declined"
	EventRematchOffered  EventType = "rematch_offered"
	EventRematchDeclined EventType = "rematch_declined"
	EventRematchCreated  EventType = "rematch_created"
	EventSessionEnd      EventType = "session_end"
)

// Event is the broadcast unit sent to connected clients.
type Event struct {
	Type    EventType              `json:"type"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// SettleReport is handed to the OnSettle hook exactly once per session.
type SettleReport struct {
	Code             string
	Result           Result
	Reason           string
	White            *Participant
	Black            *Participant
	MovesUCI         []string
	FinalFEN         string
	TournamentGameID *uuid.UUID
	LeagueMatchID    *uuid.UUID
}

// Session holds the entire state of one live (or recently finished) game.
// All mutation is serialized through Mu; the periodic clock tick and inbound
// actions both funnel through timeoutCheck/settle, which stay idempotent via
// the terminal-state guard.
type Session struct {
	Code        string
	CreatedAt   time.Time
	TimeControl clock.TimeControl

	Eng      engine.Engine
	Position engine.Position
	Turn     clock.Side

	Clock clock.State

	White      *Participant
	Black      *Participant
	spectators map[uuid.UUID]bool

	State     State
	Result    Result
	EndReason string

	DrawOffer    Offer
	RematchOffer Offer

	// Optional linkage to a scheduler record; settle reports through it.
	TournamentGameID *uuid.UUID
	LeagueMatchID    *uuid.UUID

	Mu sync.Mutex

	// BroadcastFn sends an event to everyone in the session. Nil disables.
	BroadcastFn func(ev Event)
	// BroadcastToUserFn sends an event to a single user. Nil disables.
	BroadcastToUserFn func(userID uuid.UUID, ev Event)
	// OnSettle runs once on the terminal transition (rating + persistence +
	// scheduler reporting live behind it).
	OnSettle func(rep SettleReport)
	// OnRematch builds the successor session when a rematch is accepted.
	OnRematch func(old *Session) (*Session, error)

	watchDone chan struct{}
}

// New builds a pending session. The position is owned by the rules engine;
// the session only references it.
func New(code string, eng engine.Engine, tc clock.TimeControl) *Session {
	return &Session{
		Code:        code,
		CreatedAt:   time.Now(),
		TimeControl: tc,
		Eng:         eng,
		Position:    eng.NewPosition(),
		Turn:        clock.White,
		Clock:       clock.NewState(tc),
		State:       StatePending,
		spectators:  make(map[uuid.UUID]bool),
	}
}

// Seat places a participant at the first free seat, or re-binds their
// connection if they already occupy one. Once both seats are taken the
// session activates and its clock watch starts.
func (s *Session) Seat(p *Participant) (clock.Side, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	// Reconnect path: a disconnect only vacated the connection, not the
	// identity, so the same user always gets their old seat back.
	if s.White != nil && s.White.UserID == p.UserID {
		s.White.Connected = true
		s.fireEvent(Event{Type: EventPlayerJoined, Payload: map[string]interface{}{"user_id": p.UserID, "side": clock.White, "reconnect": true}})
		return clock.White, nil
	}
	if s.Black != nil && s.Black.UserID == p.UserID {
		s.Black.Connected = true
		s.fireEvent(Event{Type: EventPlayerJoined, Payload: map[string]interface{}{"user_id": p.UserID, "side": clock.Black, "reconnect": true}})
		return clock.Black, nil
	}

	if s.isTerminalLocked() {
		return "", ErrSessionTerminal
	}

	// Connected is the caller's to set: the pool and the schedulers seat
	// players before any socket is bound, and those seats must still read
	// as vacant to Empty until the player actually connects.
	var side clock.Side
	switch {
	case s.White == nil:
		s.White = p
		side = clock.White
	case s.Black == nil:
		s.Black = p
		side = clock.Black
	default:
		return "", ErrSessionFull
	}

	s.fireEvent(Event{Type: EventPlayerJoined, Payload: map[string]interface{}{"user_id": p.UserID, "side": side}})

	if s.State == StatePending && s.White != nil && s.Black != nil {
		s.State = StateActive
		s.startWatchLocked()
		s.fireEvent(Event{Type: EventSessionStarted, Payload: map[string]interface{}{
			"white": s.White.Username, "black": s.Black.Username, "time_control": s.TimeControl.String(),
		}})
	}
	return side, nil
}

// Spectate registers a spectator. Spectators can watch and keep the session
// alive but cannot act.
func (s *Session) Spectate(userID uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.spectators[userID] = true
}

// HandleDisconnect vacates the user's connection. It never cancels or
// forfeits the session; the seat stays reserved for reconnection.
func (s *Session) HandleDisconnect(userID uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.White != nil && s.White.UserID == userID {
		s.White.Connected = false
	} else if s.Black != nil && s.Black.UserID == userID {
		s.Black.Connected = false
	} else {
		delete(s.spectators, userID)
		return
	}
	s.fireEvent(Event{Type: EventPlayerLeft, Payload: map[string]interface{}{"user_id": userID}})
}

// Empty reports whether nobody is attached: both seats vacated (or never
// filled) and no spectators. Only empty sessions may leave the registry.
func (s *Session) Empty() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	whiteGone := s.White == nil || !s.White.Connected
	blackGone := s.Black == nil || !s.Black.Connected
	return whiteGone && blackGone && len(s.spectators) == 0
}

// ApplyMove validates and applies a move for the given user. Timeout
// detection takes precedence over move application so a flagged player can
// never slip in a last move.
func (s *Session) ApplyMove(userID uuid.UUID, from, to, promotion string) (*engine.MoveResult, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isTerminalLocked() {
		return nil, ErrSessionTerminal
	}
	if s.State != StateActive {
		return nil, ErrNotActive
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		return nil, ErrNotSeated
	}
	if side != s.Turn {
		return nil, ErrNotYourTurn
	}

	now := time.Now()
	if s.Clock.Flagged(s.Turn, now) {
		s.settleLocked(winnerOf(clock.Opponent(s.Turn)), ReasonTimeout, now)
		return nil, ErrFlagFell
	}

	res, err := s.Eng.ApplyMove(s.Position, from, to, promotion)
	if err != nil {
		// Rejected by the rules engine; nothing changed.
		return nil, err
	}

	if !s.Clock.Started {
		s.Clock.OnFirstMove(now, clock.Opponent(side))
	} else {
		s.Clock.OnMoveCompleted(side, now)
	}
	s.Position = res.Position
	s.Turn = clock.Opponent(side)

	whiteMs, blackMs := s.Clock.Remaining(now)
	s.fireEvent(Event{Type: EventMoveApplied, Payload: map[string]interface{}{
		"user_id":  userID,
		"uci":      res.UCI,
		"san":      res.SAN,
		"fen":      res.Position.FEN,
		"turn":     s.Turn,
		"white_ms": whiteMs,
		"black_ms": blackMs,
	}})

	if res.IsTerminal {
		s.settleLocked(resultFromEngine(res.Result), res.Reason, now)
	}
	return res, nil
}

// OfferDraw opens a draw offer for the acting side. Only one offer may be
// pending at a time.
func (s *Session) OfferDraw(userID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isTerminalLocked() {
		return ErrSessionTerminal
	}
	if s.State != StateActive {
		return ErrNotActive
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		return ErrNotSeated
	}
	if s.DrawOffer.Pending {
		return ErrOfferPending
	}
	s.DrawOffer.open(side)
	s.fireEvent(Event{Type: EventDrawOffered, Payload: map[string]interface{}{"by": side}})
	return nil
}

// AcceptDraw settles the session as a draw. The offering side cannot accept
// its own offer.
func (s *Session) AcceptDraw(userID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isTerminalLocked() {
		return ErrSessionTerminal
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		return ErrNotSeated
	}
	if !s.DrawOffer.Pending {
		return ErrNoPendingOffer
	}
	if s.DrawOffer.By == side {
		return ErrOwnOffer
	}
	s.DrawOffer.clear()
	s.settleLocked(ResultDraw, ReasonDrawAgreed, time.Now())
	return nil
}

// DeclineDraw clears the pending offer with no other effect: the session
// stays active and neither clock is touched.
func (s *Session) DeclineDraw(userID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isTerminalLocked() {
		return ErrSessionTerminal
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		return ErrNotSeated
	}
	if !s.DrawOffer.Pending {
		return ErrNoPendingOffer
	}
	if s.DrawOffer.By == side {
		return ErrOwnOffer
	}
	s.DrawOffer.clear()
	s.fireEvent(Event{Type: EventDrawDeclined, Payload: map[string]interface{}{"by": side}})
	return nil
}

// Resign immediately settles with the opposite side as winner. Any pending
// offers are cleared first.
func (s *Session) Resign(userID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isTerminalLocked() {
		return ErrSessionTerminal
	}
	if s.State != StateActive {
		return ErrNotActive
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		return ErrNotSeated
	}
	s.DrawOffer.clear()
	s.RematchOffer.clear()
	s.settleLocked(winnerOf(clock.Opponent(side)), ReasonResignation, time.Now())
	return nil
}

// TimeoutCheck settles the session if the side to move has run out of time.
// It is invoked by the periodic tick and defensively before moves; repeated
// invocations on a terminal session are no-ops, so the tick and the move
// path may race on the same boundary safely.
func (s *Session) TimeoutCheck() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.isTerminalLocked() || s.State != StateActive {
		return false
	}
	now := time.Now()
	if !s.Clock.Flagged(s.Turn, now) {
		return false
	}
	s.settleLocked(winnerOf(clock.Opponent(s.Turn)), ReasonTimeout, now)
	return true
}

// Cancel settles a session as cancelled, e.g. when it never filled up.
func (s *Session) Cancel() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if s.isTerminalLocked() {
		return
	}
	s.settleLocked(ResultCancelled, ReasonCancelled, time.Now())
}

// RequestRematch opens a rematch request on a finished session, mirroring
// the draw-offer protocol.
func (s *Session) RequestRematch(userID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.State != StateCompleted {
		return ErrNotActive
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		return ErrNotSeated
	}
	if s.RematchOffer.Pending {
		return ErrOfferPending
	}
	s.RematchOffer.open(side)
	s.fireEvent(Event{Type: EventRematchOffered, Payload: map[string]interface{}{"by": side}})
	return nil
}

// AcceptRematch creates a fresh session with sides swapped and a reset
// clock. The original, now-terminal session is left untouched apart from the
// cleared request.
func (s *Session) AcceptRematch(userID uuid.UUID) (*Session, error) {
	s.Mu.Lock()

	if s.State != StateCompleted {
		s.Mu.Unlock()
		return nil, ErrNotActive
	}
	side, ok := s.sideOfLocked(userID)
	if !ok {
		s.Mu.Unlock()
		return nil, ErrNotSeated
	}
	if !s.RematchOffer.Pending {
		s.Mu.Unlock()
		return nil, ErrNoPendingOffer
	}
	if s.RematchOffer.By == side {
		s.Mu.Unlock()
		return nil, ErrOwnOffer
	}
	if s.OnRematch == nil {
		s.Mu.Unlock()
		return nil, ErrNoRematchHook
	}
	s.RematchOffer.clear()
	hook := s.OnRematch
	s.Mu.Unlock()

	// The hook seats participants on the new session and takes its own
	// locks, so it must run outside ours.
	next, err := hook(s)
	if err != nil {
		return nil, err
	}

	s.Mu.Lock()
	s.fireEvent(Event{Type: EventRematchCreated, Payload: map[string]interface{}{"code": next.Code}})
	s.Mu.Unlock()
	return next, nil
}

// DeclineRematch clears the pending request with no other effect.
func (s *Session) DeclineRematch(userID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	side, ok := s.sideOfLocked(userID)
	if !ok {
		return ErrNotSeated
	}
	if !s.RematchOffer.Pending {
		return ErrNoPendingOffer
	}
	if s.RematchOffer.By == side {
		return ErrOwnOffer
	}
	s.RematchOffer.clear()
	s.fireEvent(Event{Type: EventRematchDeclined, Payload: map[string]interface{}{"by": side}})
	return nil
}

// RemainingMs reports both clocks as of now, for state sync on (re)connect.
func (s *Session) RemainingMs() (whiteMs, blackMs int64) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.Clock.Remaining(time.Now())
}

// SideOf reports which seat, if any, the user occupies.
func (s *Session) SideOf(userID uuid.UUID) (clock.Side, bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.sideOfLocked(userID)
}

// Terminal reports whether the session has reached a final state.
func (s *Session) Terminal() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.isTerminalLocked()
}

// --- internals; all assume the session lock is held ---

func (s *Session) sideOfLocked(userID uuid.UUID) (clock.Side, bool) {
	if s.White != nil && s.White.UserID == userID {
		return clock.White, true
	}
	if s.Black != nil && s.Black.UserID == userID {
		return clock.Black, true
	}
	return "", false
}

func (s *Session) isTerminalLocked() bool {
	return s.State == StateCompleted || s.State == StateCancelled
}

// settleLocked marks the session terminal exactly once. The state guard, not
// a separate lock, is what makes racing triggers (tick vs. move vs. resign)
// collapse into a single settlement.
func (s *Session) settleLocked(result Result, reason string, now time.Time) {
	if s.isTerminalLocked() {
		return
	}
	if result == ResultCancelled {
		s.State = StateCancelled
	} else {
		s.State = StateCompleted
	}
	s.Result = result
	s.EndReason = reason
	s.Clock.Stop(now)
	s.stopWatchLocked()

	whiteMs, blackMs := s.Clock.Remaining(now)
	s.fireEvent(Event{Type: EventSessionEnd, Payload: map[string]interface{}{
		"result":   result,
		"reason":   reason,
		"white_ms": whiteMs,
		"black_ms": blackMs,
	}})

	if s.OnSettle != nil {
		rep := SettleReport{
			Code:             s.Code,
			Result:           result,
			Reason:           reason,
			MovesUCI:         append([]string{}, s.Position.MovesUCI...),
			FinalFEN:         s.Position.FEN,
			TournamentGameID: s.TournamentGameID,
			LeagueMatchID:    s.LeagueMatchID,
		}
		if s.White != nil {
			w := *s.White
			rep.White = &w
		}
		if s.Black != nil {
			b := *s.Black
			rep.Black = &b
		}
		// Rating and persistence collaborators run off the hot path.
		go s.OnSettle(rep)
	}
}

// startWatchLocked begins the periodic timeout sweep. Untimed sessions never
// get a watch since no timeout can fire.
func (s *Session) startWatchLocked() {
	if s.TimeControl.Untimed || s.watchDone != nil {
		return
	}
	done := make(chan struct{})
	s.watchDone = done
	go func() {
		t := time.NewTicker(clockTickInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				s.TimeoutCheck()
			}
		}
	}()
}

// stopWatchLocked cancels the sweep exactly once so terminated sessions do
// not leak tickers.
func (s *Session) stopWatchLocked() {
	if s.watchDone != nil {
		close(s.watchDone)
		s.watchDone = nil
	}
}

func (s *Session) fireEvent(ev Event) {
	if s.BroadcastFn == nil {
		return
	}
	s.BroadcastFn(ev)
}

func winnerOf(side clock.Side) Result {
	if side == clock.White {
		return ResultWhiteWon
	}
	return ResultBlackWon
}

func resultFromEngine(r engine.Result) Result {
	switch r {
	case engine.WhiteWon:
		return ResultWhiteWon
	case engine.BlackWon:
		return ResultBlackWon
	case engine.Draw:
		return ResultDraw
	default:
		log.Printf("unknown engine result %q, recording draw", r)
		return ResultDraw
	}
}

// ScoreFor translates a settled result into the mover's match score for
// rating purposes: 1, 0.5 or 0 seen from the given side.
func ScoreFor(result Result, side clock.Side) (float64, error) {
	switch result {
	case ResultDraw:
		return 0.5, nil
	case ResultWhiteWon:
		if side == clock.White {
			return 1, nil
		}
		return 0, nil
	case ResultBlackWon:
		if side == clock.Black {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("result %q carries no score", result)
	}
}
