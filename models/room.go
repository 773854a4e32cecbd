package models

// RoomStatus is the lifecycle phase of a race room.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

// GameMode selects between a normal multiplayer race and a race against
// a synthetic opponent.
type GameMode string

const (
	ModeStandard   GameMode = "standard"
	ModeVsComputer GameMode = "vs-computer"
)

// RoomConfig is everything the caller chooses at creation time.
type RoomConfig struct {
	Level          string   `json:"level"`
	MaxPlayers     int      `json:"max_players"`
	QuestionsCount int      `json:"questions_count"`
	GameMode       GameMode `json:"game_mode"`
}

// RoomSummary is the lobby-facing view of a room.
type RoomSummary struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Level       string     `json:"level"`
	MaxPlayers  int        `json:"max_players"`
	PlayerCount int        `json:"player_count"`
	Status      RoomStatus `json:"status"`
	GameMode    GameMode   `json:"game_mode"`
}

// RoomSnapshot is a point-in-time copy of room state, used for state sync
// on (re)connect and for tests. It never aliases live room state.
type RoomSnapshot struct {
	ID                   string        `json:"id"`
	Code                 string        `json:"code"`
	Level                string        `json:"level"`
	MaxPlayers           int           `json:"max_players"`
	QuestionsCount       int           `json:"questions_count"`
	GameMode             GameMode      `json:"game_mode"`
	Status               RoomStatus    `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	CurrentQuestion      *QuestionView `json:"current_question,omitempty"`
	Players              []Player      `json:"players"`
}
