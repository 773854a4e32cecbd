package services

import (
	"sort"
	"time"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

const (
	basePoints  = 100
	speedPoints = 50
)

// Standing is one row of a leaderboard.
type Standing struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	DisplayName    string `json:"display_name"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correct_answers"`
	IsBot          bool   `json:"is_bot,omitempty"`
}

// CalculatePoints scores one answer. A correct answer earns the base plus
// a speed bonus that decays linearly as elapsed approaches the round
// duration; anything at or past the deadline earns zero regardless of
// correctness.
func CalculatePoints(elapsed, duration time.Duration, isCorrect bool) int {
	if !isCorrect {
		return 0
	}
	if elapsed >= duration || duration <= 0 {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	bonus := int(float64(speedPoints) * float64(duration-elapsed) / float64(duration))
	return basePoints + bonus
}

// ComputeLeaderboard ranks players by score, then correct answers, then
// join order. joinOrder carries user ids in the order they joined, which
// makes the tie-break deterministic across recomputations.
func ComputeLeaderboard(players map[string]*models.Player, joinOrder []string) []Standing {
	standings := make([]Standing, 0, len(joinOrder))
	for _, userID := range joinOrder {
		p, ok := players[userID]
		if !ok {
			continue
		}
		standings = append(standings, Standing{
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			IsBot:          p.IsBot,
		})
	}

	// Stable sort preserves join order for full ties.
	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].CorrectAnswers > standings[j].CorrectAnswers
	})

	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}
