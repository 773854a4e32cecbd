package models

import (
	"time"

	"gorm.io/gorm"
)

// RaceResult is one player's final standing in a finished race.
type RaceResult struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	RoomID         string         `json:"room_id" gorm:"index;not null"`
	Code           string         `json:"code" gorm:"not null"`
	Level          string         `json:"level"`
	GameMode       string         `json:"game_mode"`
	UserID         string         `json:"user_id" gorm:"index;not null"`
	DisplayName    string         `json:"display_name"`
	Rank           int            `json:"rank" gorm:"not null"`
	Score          int            `json:"score" gorm:"not null"`
	CorrectAnswers int            `json:"correct_answers" gorm:"not null"`
	TotalQuestions int            `json:"total_questions" gorm:"not null"`
	FinishedAt     time.Time      `json:"finished_at"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
