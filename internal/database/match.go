// internal/database/match.go
package database

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/matchroom-gg/matchroom/internal/rating"
)

// CreateMatchRecord inserts the initial row for a live match. Called when a
// session activates; the row is completed later by FinishMatchRecord.
func CreateMatchRecord(ctx context.Context, matchID uuid.UUID, code string, whiteID, blackID uuid.UUID, timeControl string) error {
	q := `
		INSERT INTO matches (id, code, white_id, black_id, time_control, status)
		VALUES ($1, $2, $3, $4, $5, 'active')
		ON CONFLICT (id) DO NOTHING
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, matchID, code, whiteID, blackID, timeControl)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

// FinishMatchRecord stamps the terminal outcome onto the match row. Upserts so
// a match that never got a CreateMatchRecord (e.g. the server restarted
// mid-game) still leaves a completed row behind.
func FinishMatchRecord(ctx context.Context, matchID uuid.UUID, code string, result, reason, finalFEN string, movesUCI []string) error {
	q := `
		INSERT INTO matches (id, code, status, result, end_reason, final_fen, moves)
		VALUES ($1, $2, 'completed', $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET status='completed', result=$3, end_reason=$4, final_fen=$5, moves=$6
	`
	err := pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, matchID, code, result, reason, finalFEN, movesUCI)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("failed to finish match: %w", err)
	}
	return nil
}

// CommitMatchRatings applies an ELO update for a finished rated match. Both
// deltas are computed from the pre-update ratings, then the new values and a
// history row per player are written in one transaction.
//
// whiteScore is 1, 0.5, or 0 from white's perspective.
func CommitMatchRatings(ctx context.Context, matchID, whiteID, blackID uuid.UUID, whiteScore float64) (rating.Delta, error) {
	white, err := GetUserByID(ctx, whiteID)
	if err != nil {
		return rating.Delta{}, fmt.Errorf("load white for rating: %w", err)
	}
	black, err := GetUserByID(ctx, blackID)
	if err != nil {
		return rating.Delta{}, fmt.Errorf("load black for rating: %w", err)
	}

	d := rating.ComputeDelta(white.Rating, black.Rating, whiteScore)
	newWhite := white.Rating + d.A
	newBlack := black.Rating + d.B

	err = pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		updQ := `UPDATE users SET rating=$1 WHERE id=$2`
		if _, e := tx.Exec(ctx, updQ, newWhite, whiteID); e != nil {
			return e
		}
		if _, e := tx.Exec(ctx, updQ, newBlack, blackID); e != nil {
			return e
		}

		insQ := `
			INSERT INTO ratings (user_id, match_id, old_rating, new_rating)
			VALUES ($1, $2, $3, $4)
		`
		if _, e := tx.Exec(ctx, insQ, whiteID, matchID, white.Rating, newWhite); e != nil {
			return e
		}
		if _, e := tx.Exec(ctx, insQ, blackID, matchID, black.Rating, newBlack); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		return rating.Delta{}, fmt.Errorf("tx rating update: %w", err)
	}

	log.Printf("ratings committed for match %s: white %d->%d, black %d->%d",
		matchID, white.Rating, newWhite, black.Rating, newBlack)
	return d, nil
}
