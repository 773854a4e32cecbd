package services

import "github.com/ledionnezirii/germanmaster-sub002/models"

// Event types delivered over the persistent connection. Every state
// transition the room applies is broadcast in the same order it was
// applied; raceError goes to the offending participant only.
const (
	EventPlayerJoined   = "player_joined"
	EventPlayerReady    = "player_ready"
	EventGameStarted    = "game_started"
	EventPlayerAnswered = "player_answered"
	EventNextQuestion   = "next_question"
	EventGameFinished   = "game_finished"
	EventPlayerLeft     = "player_left"
	EventRoomState      = "room_state"
	EventRaceError      = "race_error"
)

// Broadcaster fans room events out to connected participants. The Hub is
// the production implementation; tests substitute a recorder.
type Broadcaster interface {
	BroadcastToRoom(roomID string, eventType string, payload interface{})
	BroadcastToRoomExcept(roomID, exceptUserID string, eventType string, payload interface{})
	SendToPlayer(roomID, userID string, eventType string, payload interface{})
}

type PlayersPayload struct {
	Players []models.Player `json:"players"`
}

type GameStartedPayload struct {
	Question       models.QuestionView `json:"question"`
	QuestionIndex  int                 `json:"question_index"`
	TotalQuestions int                 `json:"total_questions"`
}

type PlayerAnsweredPayload struct {
	UserID        string `json:"user_id"`
	QuestionIndex int    `json:"question_index"`
}

type NextQuestionPayload struct {
	Question      models.QuestionView `json:"question"`
	QuestionIndex int                 `json:"question_index"`
	Leaderboard   []Standing          `json:"leaderboard"`
}

type GameFinishedPayload struct {
	Leaderboard    []Standing `json:"leaderboard"`
	TotalQuestions int        `json:"total_questions"`
}

type PlayerLeftPayload struct {
	UserID  string          `json:"user_id"`
	Reason  string          `json:"reason"` // "left" or "disconnected"
	Players []models.Player `json:"players"`
}

type RaceErrorPayload struct {
	Message string `json:"message"`
}
