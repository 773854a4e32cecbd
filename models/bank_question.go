package models

import (
	"time"

	"gorm.io/gorm"
)

// BankQuestion is a question-bank row. The race engine only ever reads
// these; authoring belongs to the content-management side of the app.
type BankQuestion struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Level        string         `json:"level" gorm:"index;not null"`
	Text         string         `json:"text" gorm:"not null"`
	CorrectIndex int            `json:"correct_index" gorm:"not null"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Options []BankOption `json:"options,omitempty" gorm:"foreignKey:BankQuestionID"`
}

type BankOption struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	BankQuestionID uint      `json:"bank_question_id" gorm:"not null"`
	Text           string    `json:"text" gorm:"not null"`
	Position       int       `json:"position" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}
