package models

import "time"

// PlayerStats aggregates a user's race history. Updated by the result
// sink after every finished race.
type PlayerStats struct {
	UserID      string    `json:"user_id" gorm:"primaryKey"`
	GamesPlayed int       `json:"games_played" gorm:"not null;default:0"`
	Wins        int       `json:"wins" gorm:"not null;default:0"`
	BestScore   int       `json:"best_score" gorm:"not null;default:0"`
	TotalScore  int       `json:"total_score" gorm:"not null;default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}
