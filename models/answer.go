package models

// Answer records one accepted submission. SubmittedAtMs is the
// server-observed elapsed time since the question opened; TimeSpentMs is
// what the client reported and is kept for display only. Scoring trusts
// the server clock.
type Answer struct {
	OptionIndex   int   `json:"option_index"`
	TimeSpentMs   int64 `json:"time_spent_ms"`
	SubmittedAtMs int64 `json:"submitted_at_ms"`
	IsCorrect     bool  `json:"is_correct"`
	Points        int   `json:"points"`
}
