package models

// Question is owned by the room that copied it from the question bank at
// creation; bank edits cannot affect a race in progress.
type Question struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correct_option_index"`
}

// QuestionView is the client-facing rendering of a question. The correct
// option index is intentionally absent.
type QuestionView struct {
	Text        string   `json:"text"`
	Options     []string `json:"options"`
	TimeLimitMs int64    `json:"time_limit_ms"`
}

func (q Question) View(timeLimitMs int64) QuestionView {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return QuestionView{
		Text:        q.Text,
		Options:     options,
		TimeLimitMs: timeLimitMs,
	}
}
