package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

func TestCalculatePoints(t *testing.T) {
	duration := 10 * time.Second

	t.Run("instant correct answer earns full points", func(t *testing.T) {
		assert.Equal(t, basePoints+speedPoints, CalculatePoints(0, duration, true))
	})

	t.Run("bonus decays with elapsed time", func(t *testing.T) {
		half := CalculatePoints(5*time.Second, duration, true)
		assert.Equal(t, basePoints+speedPoints/2, half)

		late := CalculatePoints(9*time.Second, duration, true)
		assert.Greater(t, half, late)
		assert.GreaterOrEqual(t, late, basePoints)
	})

	t.Run("answer at or past the deadline earns zero", func(t *testing.T) {
		assert.Equal(t, 0, CalculatePoints(duration, duration, true))
		assert.Equal(t, 0, CalculatePoints(duration+time.Second, duration, true))
	})

	t.Run("incorrect answer earns zero regardless of speed", func(t *testing.T) {
		assert.Equal(t, 0, CalculatePoints(0, duration, false))
	})
}

func TestComputeLeaderboard(t *testing.T) {
	players := map[string]*models.Player{
		"a": {UserID: "a", Score: 100, CorrectAnswers: 1},
		"b": {UserID: "b", Score: 250, CorrectAnswers: 2},
		"c": {UserID: "c", Score: 100, CorrectAnswers: 2},
		"d": {UserID: "d", Score: 100, CorrectAnswers: 1},
	}
	joinOrder := []string{"a", "b", "c", "d"}

	board := ComputeLeaderboard(players, joinOrder)

	ids := make([]string, len(board))
	for i, s := range board {
		ids[i] = s.UserID
	}

	// Score first, then correct answers, then join order for full ties.
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids)
	for i, s := range board {
		assert.Equal(t, i+1, s.Rank)
	}
}

func TestComputeLeaderboardDeterministic(t *testing.T) {
	players := map[string]*models.Player{
		"x": {UserID: "x", Score: 50, CorrectAnswers: 1},
		"y": {UserID: "y", Score: 50, CorrectAnswers: 1},
		"z": {UserID: "z", Score: 50, CorrectAnswers: 1},
	}
	joinOrder := []string{"z", "x", "y"}

	first := ComputeLeaderboard(players, joinOrder)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, ComputeLeaderboard(players, joinOrder))
	}
	assert.Equal(t, "z", first[0].UserID)
}
