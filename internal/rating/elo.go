// internal/rating/elo.go
package rating

import "math"

const (
	// DefaultK is the K-factor applied to every rated match.
	DefaultK = 32
	// DefaultRating is the rating assigned to a fresh account.
	DefaultRating = 1200
)

// Delta is the pair of signed rating adjustments produced by one match.
type Delta struct {
	A int
	B int
}

// ExpectedScore returns A's expected score against B on the standard
// logistic curve: 1 / (1 + 10^((rB-rA)/400)).
func ExpectedScore(ratingA, ratingB int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingB-ratingA)/400.0))
}

// ComputeDelta computes the symmetric rating adjustments for one match.
// scoreA is A's result: 1 for a win, 0.5 for a draw, 0 for a loss. Both
// deltas are derived from the pre-update ratings; this function holds no
// state and performs no persistence.
func ComputeDelta(ratingA, ratingB int, scoreA float64) Delta {
	return ComputeDeltaK(ratingA, ratingB, scoreA, DefaultK)
}

// ComputeDeltaK is ComputeDelta with an explicit K-factor.
func ComputeDeltaK(ratingA, ratingB int, scoreA float64, k float64) Delta {
	expectedA := ExpectedScore(ratingA, ratingB)
	expectedB := ExpectedScore(ratingB, ratingA)
	scoreB := 1.0 - scoreA
	return Delta{
		A: int(math.Round(k * (scoreA - expectedA))),
		B: int(math.Round(k * (scoreB - expectedB))),
	}
}
