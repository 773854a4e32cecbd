package services

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

// QuestionBank hands the registry an ordered question set at room
// creation. The room copies what it gets; later bank edits never reach a
// race in progress.
type QuestionBank interface {
	Questions(ctx context.Context, level string, count int) ([]models.Question, error)
}

// GormQuestionBank reads the question-bank tables maintained by the
// content side of the app.
type GormQuestionBank struct {
	db *gorm.DB
}

func NewGormQuestionBank(db *gorm.DB) *GormQuestionBank {
	return &GormQuestionBank{db: db}
}

func (b *GormQuestionBank) Questions(ctx context.Context, level string, count int) ([]models.Question, error) {
	var rows []models.BankQuestion

	query := b.db.WithContext(ctx).Preload("Options")
	if level != "" {
		query = query.Where("level = ?", level)
	}
	if err := query.Order("RANDOM()").Limit(count).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying question bank: %w", err)
	}

	questions := make([]models.Question, 0, len(rows))
	for _, row := range rows {
		sort.Slice(row.Options, func(i, j int) bool {
			return row.Options[i].Position < row.Options[j].Position
		})
		options := make([]string, len(row.Options))
		for i, opt := range row.Options {
			options[i] = opt.Text
		}
		questions = append(questions, models.Question{
			Text:               row.Text,
			Options:            options,
			CorrectOptionIndex: row.CorrectIndex,
		})
	}
	return questions, nil
}
