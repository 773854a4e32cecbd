package services

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

// Bot is the synthetic opponent for vs-computer rooms. It is deliberately
// external to the state machine: it joins like any player, observes the
// same events, and submits answers through the same entry point. Accuracy
// is the probability of picking the correct option.
type Bot struct {
	room      *Room
	userID    string
	questions []models.Question
	accuracy  float64
	log       zerolog.Logger
}

// StartBot attaches a synthetic player to a room. Called by the registry
// right after creating a vs-computer room.
func StartBot(room *Room, cfg BotConfig, logger zerolog.Logger) *Bot {
	name := cfg.DisplayName
	if name == "" {
		name = "Computer"
	}

	bot := &Bot{
		room:      room,
		userID:    "bot:" + uuid.NewString(),
		questions: room.Questions(),
		accuracy:  cfg.Accuracy,
		log:       logger.With().Str("component", "bot").Str("room_id", room.ID()).Logger(),
	}

	if err := room.join(bot.userID, name, true); err != nil {
		bot.log.Warn().Err(err).Msg("bot could not join room")
		return nil
	}
	room.Observe(bot.onEvent)
	return bot
}

// onEvent runs on the room goroutine; it only schedules work.
func (b *Bot) onEvent(eventType string, payload interface{}) {
	switch eventType {
	case EventGameStarted:
		p, ok := payload.(GameStartedPayload)
		if !ok {
			return
		}
		b.scheduleAnswer(p.QuestionIndex, p.Question.TimeLimitMs)
	case EventNextQuestion:
		p, ok := payload.(NextQuestionPayload)
		if !ok {
			return
		}
		b.scheduleAnswer(p.QuestionIndex, p.Question.TimeLimitMs)
	}
}

func (b *Bot) scheduleAnswer(questionIndex int, timeLimitMs int64) {
	if questionIndex < 0 || questionIndex >= len(b.questions) {
		return
	}

	// Answer somewhere in the first 20-80% of the round.
	limit := time.Duration(timeLimitMs) * time.Millisecond
	delay := time.Duration(float64(limit) * (0.2 + 0.6*rand.Float64()))

	time.AfterFunc(delay, func() {
		question := b.questions[questionIndex]
		option := b.pickOption(question)
		elapsed := delay.Milliseconds()

		if err := b.room.SubmitAnswer(b.userID, questionIndex, option, elapsed); err != nil {
			// The round may have closed under us; nothing to do.
			b.log.Debug().Err(err).Int("question", questionIndex).Msg("bot answer rejected")
		}
	})
}

func (b *Bot) pickOption(question models.Question) int {
	if rand.Float64() < b.accuracy {
		return question.CorrectOptionIndex
	}

	// Pick any wrong option.
	if len(question.Options) < 2 {
		return question.CorrectOptionIndex
	}
	wrong := rand.Intn(len(question.Options) - 1)
	if wrong >= question.CorrectOptionIndex {
		wrong++
	}
	return wrong
}
