// internal/engine/chessrules/adapter.go
package chessrules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/matchroom-gg/matchroom/internal/engine"
)

// Adapter implements engine.Engine on top of the corentings/chess rules
// library. It is stateless: every call reconstructs the game from the stored
// move list, which keeps the session's position reference authoritative.
type Adapter struct{}

// New returns a ready chess rules adapter.
func New() *Adapter {
	return &Adapter{}
}

// NewPosition returns the standard chess starting position.
func (a *Adapter) NewPosition() engine.Position {
	return engine.Position{
		FEN:      nchess.NewGame().FEN(),
		MovesUCI: []string{},
	}
}

// ApplyMove validates and applies a from/to(/promotion) move.
func (a *Adapter) ApplyMove(pos engine.Position, from, to, promotion string) (*engine.MoveResult, error) {
	game := reconstruct(pos.MovesUCI)
	if game == nil {
		return nil, fmt.Errorf("corrupt move history (%d moves)", len(pos.MovesUCI))
	}

	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to) + strings.TrimSpace(promotion))
	if len(uci) < 4 {
		return nil, engine.ErrIllegalMove
	}

	before := game.Position()
	mv, err := nchess.UCINotation{}.Decode(before, uci)
	if err != nil {
		return nil, engine.ErrIllegalMove
	}
	if err := game.Move(mv, nil); err != nil {
		return nil, engine.ErrIllegalMove
	}
	san := nchess.AlgebraicNotation{}.Encode(before, mv)

	// Repetition and move-count draws are claimable rather than automatic in
	// the library; the orchestration core ends such games immediately, so
	// claim them on the mover's behalf.
	for _, m := range game.EligibleDraws() {
		if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
			_ = game.Draw(m)
			break
		}
	}

	res := &engine.MoveResult{
		Position: engine.Position{
			FEN:      game.FEN(),
			MovesUCI: append(append([]string{}, pos.MovesUCI...), uci),
		},
		SAN:         san,
		UCI:         uci,
		WhiteToMove: game.Position().Turn() == nchess.White,
	}

	switch game.Outcome() {
	case nchess.WhiteWon:
		res.IsTerminal = true
		res.Result = engine.WhiteWon
	case nchess.BlackWon:
		res.IsTerminal = true
		res.Result = engine.BlackWon
	case nchess.Draw:
		res.IsTerminal = true
		res.Result = engine.Draw
	}
	if res.IsTerminal {
		res.Reason = reasonFromMethod(game.Method())
	}
	return res, nil
}

// reconstruct replays the stored UCI moves from the start position. The FEN
// snapshot is deliberately ignored here; replaying keeps repetition and
// move-count state intact.
func reconstruct(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}

func reasonFromMethod(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return "rules_decision"
	}
}
