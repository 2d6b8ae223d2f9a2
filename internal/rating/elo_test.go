// internal/rating/elo_test.go
package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualRatingsWinnerTakesSixteen(t *testing.T) {
	d := ComputeDelta(1200, 1200, 1)
	assert.Equal(t, 16, d.A)
	assert.Equal(t, -16, d.B)
}

func TestEqualRatingsDrawIsZero(t *testing.T) {
	d := ComputeDelta(1500, 1500, 0.5)
	assert.Equal(t, 0, d.A)
	assert.Equal(t, 0, d.B)
}

func TestFavoriteGainsLessThanUnderdog(t *testing.T) {
	// 1400 beats 1200: small gain for the favorite.
	d := ComputeDelta(1400, 1200, 1)
	assert.Equal(t, 8, d.A)
	assert.Equal(t, -8, d.B)

	// Upset: 1200 beats 1400.
	d = ComputeDelta(1200, 1400, 1)
	assert.Equal(t, 24, d.A)
	assert.Equal(t, -24, d.B)
}

func TestDeltasUsePreUpdateRatings(t *testing.T) {
	// Symmetry: B's delta must come from the original ratings, not from A's
	// post-delta rating, so the two deltas mirror each other exactly.
	d := ComputeDelta(1873, 1421, 0)
	assert.Equal(t, -d.A, d.B)
}

func TestExpectedScoreBounds(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1200, 1200), 1e-9)
	assert.Greater(t, ExpectedScore(2000, 1000), 0.99)
	assert.Less(t, ExpectedScore(1000, 2000), 0.01)
}

func TestCustomKFactor(t *testing.T) {
	d := ComputeDeltaK(1200, 1200, 1, 16)
	assert.Equal(t, 8, d.A)
	assert.Equal(t, -8, d.B)
}
