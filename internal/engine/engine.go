// internal/engine/engine.go
package engine

import "errors"

// ErrIllegalMove is returned when a proposed move is not legal in the given
// position. Callers treat it as a rejected action, never as a fault.
var ErrIllegalMove = errors.New("illegal move")

// Result names the game-level outcome reported by the rules engine.
type Result string

const (
	WhiteWon Result = "white_won"
	BlackWon Result = "black_won"
	Draw     Result = "draw"
)

// Position is the authoritative game position owned by the rules engine.
// Sessions hold it by reference and never interpret it themselves: the FEN is
// a presentation snapshot, the move list is the source of truth.
type Position struct {
	FEN      string   `json:"fen"`
	MovesUCI []string `json:"moves_uci"`
}

// MoveResult describes an accepted move and its consequences.
type MoveResult struct {
	Position    Position
	SAN         string
	UCI         string
	WhiteToMove bool
	IsTerminal  bool
	Result      Result // set only when IsTerminal
	Reason      string // "checkmate", "stalemate", "threefold_repetition", ...
}

// Engine is the external move-legality collaborator. The orchestration core
// never re-implements rules; it hands every proposed move to this interface
// and reacts to the verdict.
type Engine interface {
	// NewPosition returns a fresh starting position.
	NewPosition() Position

	// ApplyMove validates from/to/promotion against the position. It returns
	// ErrIllegalMove for rejected moves and leaves pos untouched; on success
	// it returns the successor position and any terminal condition.
	ApplyMove(pos Position, from, to, promotion string) (*MoveResult, error)
}
