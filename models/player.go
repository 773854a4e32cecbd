package models

// ConnectionState tracks whether a player's persistent connection is live.
type ConnectionState string

const (
	PlayerConnected    ConnectionState = "connected"
	PlayerDisconnected ConnectionState = "disconnected"
)

// Player is one participant's state within a room. Answers are keyed by
// question index and are write-once: the first accepted submission for an
// index wins.
type Player struct {
	UserID          string          `json:"user_id"`
	DisplayName     string          `json:"display_name"`
	IsReady         bool            `json:"is_ready"`
	Score           int             `json:"score"`
	CorrectAnswers  int             `json:"correct_answers"`
	Answers         map[int]Answer  `json:"-"`
	ConnectionState ConnectionState `json:"connection_state"`
	IsBot           bool            `json:"is_bot,omitempty"`
}

func (p *Player) Connected() bool {
	return p.ConnectionState == PlayerConnected
}
