package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

type recordedEvent struct {
	Type    string
	Except  string
	To      string
	Payload interface{}
}

// fakeBus records everything a room broadcasts, in order.
type fakeBus struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBus) BroadcastToRoom(roomID, eventType string, payload interface{}) {
	b.record(recordedEvent{Type: eventType, Payload: payload})
}

func (b *fakeBus) BroadcastToRoomExcept(roomID, exceptUserID, eventType string, payload interface{}) {
	b.record(recordedEvent{Type: eventType, Except: exceptUserID, Payload: payload})
}

func (b *fakeBus) SendToPlayer(roomID, userID, eventType string, payload interface{}) {
	b.record(recordedEvent{Type: eventType, To: userID, Payload: payload})
}

func (b *fakeBus) record(ev recordedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *fakeBus) ofType(eventType string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, ev := range b.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (b *fakeBus) count(eventType string) int {
	return len(b.ofType(eventType))
}

type fakeSink struct {
	mu       sync.Mutex
	outcomes []RaceOutcome
}

func (s *fakeSink) SaveResults(ctx context.Context, outcome RaceOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
}

func (s *fakeSink) saved() []RaceOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RaceOutcome(nil), s.outcomes...)
}

// fakeMirror records lobby-summary writes the way the Redis mirror would
// receive them.
type fakeMirror struct {
	mu        sync.Mutex
	summaries []models.RoomSummary
	deleted   []string
}

func (m *fakeMirror) SetScore(ctx context.Context, roomID, userID string, score int) {}

func (m *fakeMirror) SetSummary(ctx context.Context, summary models.RoomSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
}

func (m *fakeMirror) DeleteSummary(ctx context.Context, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, code)
}

func (m *fakeMirror) hasSummary(match func(models.RoomSummary) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.summaries {
		if match(s) {
			return true
		}
	}
	return false
}

func (m *fakeMirror) deletedCodes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

func testQuestions(n int) []models.Question {
	questions := make([]models.Question, n)
	for i := range questions {
		questions[i] = models.Question{
			Text:               "Frage",
			Options:            []string{"der", "die", "das", "den"},
			CorrectOptionIndex: 1,
		}
	}
	return questions
}

func newTestRoom(t *testing.T, config models.RoomConfig, questions []models.Question,
	bus Broadcaster, sink ResultSink, opts RoomOptions) *Room {
	t.Helper()
	room := NewRoom("room-1", "abc123", config, questions, bus, sink, nil, nil, opts, zerolog.Nop())
	t.Cleanup(room.Stop)
	return room
}

func standardConfig(maxPlayers, questions int) models.RoomConfig {
	return models.RoomConfig{
		Level:          "B1",
		MaxPlayers:     maxPlayers,
		QuestionsCount: questions,
		GameMode:       models.ModeStandard,
	}
}

func TestJoinRespectsCapacity(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 3), testQuestions(3), bus, nil, RoomOptions{})

	require.NoError(t, room.Join("u1", "Anna"))
	require.NoError(t, room.Join("u2", "Ben"))

	err := room.Join("u3", "Cem")
	assert.ErrorIs(t, err, ErrRoomNotJoinable)

	snap := room.Snapshot()
	assert.Len(t, snap.Players, 2)
	assert.Equal(t, 2, bus.count(EventPlayerJoined))
}

func TestJoinAfterStartRejected(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(4, 2), testQuestions(2), bus, nil, RoomOptions{})

	require.NoError(t, room.Join("u1", "Anna"))
	room.Ready("u1")

	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, room.Join("u2", "Ben"), ErrRoomNotJoinable)
}

func TestReadyQuorumGatesStart(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil, RoomOptions{})

	require.NoError(t, room.Join("u1", "Anna"))
	require.NoError(t, room.Join("u2", "Ben"))

	room.Ready("u1")

	// A single not-ready connected player blocks the transition.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, models.RoomWaiting, room.Snapshot().Status)
	assert.Zero(t, bus.count(EventGameStarted))

	room.Ready("u2")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	started := bus.ofType(EventGameStarted)
	require.Len(t, started, 1)
	payload := started[0].Payload.(GameStartedPayload)
	assert.Equal(t, 0, payload.QuestionIndex)
	assert.Equal(t, 2, payload.TotalQuestions)
	assert.Len(t, payload.Question.Options, 4) // options present, answer key never leaves the room
	assert.Equal(t, 0, room.Snapshot().CurrentQuestionIndex)
}

func TestDuplicateAndLateReadySignalsIgnored(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil, RoomOptions{})

	require.NoError(t, room.Join("u1", "Anna"))
	room.Ready("u1")
	room.Ready("u1")       // duplicate
	room.Ready("stranger") // not in the room

	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	room.Ready("u1") // after waiting ended: no-op

	assert.Equal(t, 1, bus.count(EventPlayerReady))
	assert.Equal(t, 1, bus.count(EventGameStarted))
}

func TestAnswersAreWriteOncePerQuestion(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil, RoomOptions{})

	require.NoError(t, room.Join("u1", "Anna"))
	require.NoError(t, room.Join("u2", "Ben"))
	room.Ready("u1")
	room.Ready("u2")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, room.SubmitAnswer("u1", 0, 1, 900))

	// Same index again: exactly one accepted answer, one rejection.
	err := room.SubmitAnswer("u1", 0, 2, 1200)
	assert.ErrorIs(t, err, ErrAnswerRejected)

	snap := room.Snapshot()
	var u1 models.Player
	for _, p := range snap.Players {
		if p.UserID == "u1" {
			u1 = p
		}
	}
	assert.Equal(t, 1, u1.CorrectAnswers)
	assert.Greater(t, u1.Score, 0)
	firstScore := u1.Score

	// The rejection did not affect the score.
	snap = room.Snapshot()
	for _, p := range snap.Players {
		if p.UserID == "u1" {
			assert.Equal(t, firstScore, p.Score)
		}
	}
}

func TestAnswerValidationRejectsOutOfWindow(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil, RoomOptions{})

	require.NoError(t, room.Join("u1", "Anna"))

	// Room still waiting.
	assert.ErrorIs(t, room.SubmitAnswer("u1", 0, 1, 100), ErrAnswerRejected)

	room.Ready("u1")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	// Wrong question index.
	assert.ErrorIs(t, room.SubmitAnswer("u1", 1, 1, 100), ErrAnswerRejected)
	// Unknown player.
	assert.ErrorIs(t, room.SubmitAnswer("ghost", 0, 1, 100), ErrAnswerRejected)
	// Option out of range.
	assert.ErrorIs(t, room.SubmitAnswer("u1", 0, 9, 100), ErrAnswerRejected)
}

func TestAllAnsweredAdvancesEarly(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil,
		RoomOptions{RoundDuration: time.Minute})

	require.NoError(t, room.Join("u1", "Anna"))
	require.NoError(t, room.Join("u2", "Ben"))
	room.Ready("u1")
	room.Ready("u2")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, room.SubmitAnswer("u1", 0, 1, 500))
	assert.Equal(t, 0, room.Snapshot().CurrentQuestionIndex)

	require.NoError(t, room.SubmitAnswer("u2", 0, 0, 700))

	// Round closed well before the one-minute timer.
	require.Eventually(t, func() bool {
		return room.Snapshot().CurrentQuestionIndex == 1
	}, time.Second, 5*time.Millisecond)

	next := bus.ofType(EventNextQuestion)
	require.Len(t, next, 1)
	payload := next[0].Payload.(NextQuestionPayload)
	assert.Equal(t, 1, payload.QuestionIndex)
	require.Len(t, payload.Leaderboard, 2)
	assert.Equal(t, "u1", payload.Leaderboard[0].UserID)
}

func TestPlayerAnsweredHidesAnswerFromOthers(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil,
		RoomOptions{RoundDuration: time.Minute})

	require.NoError(t, room.Join("u1", "Anna"))
	require.NoError(t, room.Join("u2", "Ben"))
	room.Ready("u1")
	room.Ready("u2")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, room.SubmitAnswer("u1", 0, 1, 500))

	answered := bus.ofType(EventPlayerAnswered)
	require.Len(t, answered, 1)
	assert.Equal(t, "u1", answered[0].Except) // submitter excluded
	payload := answered[0].Payload.(PlayerAnsweredPayload)
	assert.Equal(t, "u1", payload.UserID)
}

func TestTimerExpiryForcesAdvancement(t *testing.T) {
	bus := &fakeBus{}
	sink := &fakeSink{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, sink,
		RoomOptions{RoundDuration: 60 * time.Millisecond})

	require.NoError(t, room.Join("u1", "Anna"))
	room.Ready("u1")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	// Nobody answers; both rounds close on the timer, exactly once each.
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomFinished
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, bus.count(EventNextQuestion))
	assert.Equal(t, 1, bus.count(EventGameFinished))

	require.Eventually(t, func() bool {
		return len(sink.saved()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestRaceScenarioSpeedWinner(t *testing.T) {
	bus := &fakeBus{}
	sink := &fakeSink{}
	room := newTestRoom(t, standardConfig(2, 3), testQuestions(3), bus, sink,
		RoomOptions{RoundDuration: 80 * time.Millisecond})

	require.NoError(t, room.Join("a", "Anna"))
	require.NoError(t, room.Join("b", "Ben"))
	room.Ready("a")
	room.Ready("b")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	// Anna answers every question correctly and fast; Ben never answers,
	// so every round closes on the timer.
	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool {
			snap := room.Snapshot()
			return snap.Status == models.RoomPlaying && snap.CurrentQuestionIndex == i
		}, 2*time.Second, 2*time.Millisecond)
		require.NoError(t, room.SubmitAnswer("a", i, 1, 20))
	}

	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomFinished
	}, 2*time.Second, 5*time.Millisecond)

	finished := bus.ofType(EventGameFinished)
	require.Len(t, finished, 1)
	board := finished[0].Payload.(GameFinishedPayload).Leaderboard
	require.Len(t, board, 2)
	assert.Equal(t, "a", board[0].UserID)
	assert.Equal(t, 3, board[0].CorrectAnswers)
	assert.Greater(t, board[0].Score, 3*basePoints-1)
	assert.Equal(t, "b", board[1].UserID)
	assert.Zero(t, board[1].Score)

	require.Eventually(t, func() bool {
		return len(sink.saved()) == 1
	}, time.Second, 5*time.Millisecond)
	outcome := sink.saved()[0]
	assert.Equal(t, "room-1", outcome.RoomID)
	assert.Equal(t, 3, outcome.TotalQuestions)
	require.Len(t, outcome.Standings, 2)
	assert.Equal(t, 1, outcome.Standings[0].Rank)
}

func TestDisconnectedPlayerDoesNotStallRound(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil,
		RoomOptions{RoundDuration: time.Minute, EmptyRoomGrace: time.Minute})

	require.NoError(t, room.Join("a", "Anna"))
	require.NoError(t, room.Join("b", "Ben"))
	room.Ready("a")
	room.Ready("b")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, room.SubmitAnswer("a", 0, 1, 500))
	room.Disconnect("b")

	// With Ben gone the round closes on Anna's answer alone.
	require.Eventually(t, func() bool {
		return room.Snapshot().CurrentQuestionIndex == 1
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectRestoresScoreAndAnswers(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 3), testQuestions(3), bus, nil,
		RoomOptions{RoundDuration: time.Minute, EmptyRoomGrace: time.Minute})

	require.NoError(t, room.Join("a", "Anna"))
	require.NoError(t, room.Join("b", "Ben"))
	room.Ready("a")
	room.Ready("b")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, room.SubmitAnswer("b", 0, 1, 300))
	var scoreBefore int
	for _, p := range room.Snapshot().Players {
		if p.UserID == "b" {
			scoreBefore = p.Score
		}
	}
	require.Greater(t, scoreBefore, 0)

	room.Disconnect("b")
	require.Eventually(t, func() bool {
		for _, p := range room.Snapshot().Players {
			if p.UserID == "b" {
				return p.ConnectionState == models.PlayerDisconnected
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// Rejoining with the same userId resumes, not resets.
	require.NoError(t, room.Join("b", "Ben"))
	for _, p := range room.Snapshot().Players {
		if p.UserID == "b" {
			assert.Equal(t, models.PlayerConnected, p.ConnectionState)
			assert.Equal(t, scoreBefore, p.Score)
			assert.Equal(t, 1, p.CorrectAnswers)
		}
	}

	// Once the fresh socket attaches, the player gets a private state
	// sync carrying the preserved score.
	room.Sync("b")
	require.Eventually(t, func() bool {
		for _, ev := range bus.ofType(EventRoomState) {
			if ev.To == "b" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	synced := bus.ofType(EventRoomState)[0].Payload.(models.RoomSnapshot)
	for _, p := range synced.Players {
		if p.UserID == "b" {
			assert.Equal(t, scoreBefore, p.Score)
		}
	}
}

func TestSyncIgnoresUnknownPlayer(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil,
		RoomOptions{EmptyRoomGrace: time.Minute})

	require.NoError(t, room.Join("a", "Anna"))
	room.Sync("ghost")
	room.Sync("a")

	require.Eventually(t, func() bool {
		return len(bus.ofType(EventRoomState)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "a", bus.ofType(EventRoomState)[0].To)
}

func TestLeaveWhileWaitingFreesSlot(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(2, 2), testQuestions(2), bus, nil,
		RoomOptions{EmptyRoomGrace: time.Minute})

	require.NoError(t, room.Join("a", "Anna"))
	require.NoError(t, room.Join("b", "Ben"))
	room.Leave("b")

	require.Eventually(t, func() bool {
		return len(room.Snapshot().Players) == 1
	}, time.Second, 5*time.Millisecond)

	// The freed slot is usable again.
	require.NoError(t, room.Join("c", "Cem"))
}

func TestLeaveOfNotReadyPlayerUnblocksStart(t *testing.T) {
	bus := &fakeBus{}
	room := newTestRoom(t, standardConfig(3, 2), testQuestions(2), bus, nil,
		RoomOptions{EmptyRoomGrace: time.Minute})

	require.NoError(t, room.Join("a", "Anna"))
	require.NoError(t, room.Join("b", "Ben"))
	room.Ready("a")

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, models.RoomWaiting, room.Snapshot().Status)

	// Ben never readied; once he leaves the remaining quorum is met.
	room.Leave("b")
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)
}

func TestEmptyRoomTearsDownAfterGrace(t *testing.T) {
	bus := &fakeBus{}
	var closedID string
	var mu sync.Mutex
	onClose := func(id string) {
		mu.Lock()
		closedID = id
		mu.Unlock()
	}
	room := NewRoom("room-gc", "gc0001", standardConfig(2, 2), testQuestions(2),
		bus, nil, nil, onClose, RoomOptions{EmptyRoomGrace: 30 * time.Millisecond}, zerolog.Nop())

	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("empty room was not torn down")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return closedID == "room-gc"
	}, time.Second, 5*time.Millisecond)
}

func TestRoomSummaryMirroredForLobby(t *testing.T) {
	bus := &fakeBus{}
	mirror := &fakeMirror{}
	room := NewRoom("room-m", "mir001", standardConfig(2, 1), testQuestions(1),
		bus, nil, mirror, nil, RoomOptions{RoundDuration: 50 * time.Millisecond,
			EmptyRoomGrace: time.Minute, FinishedGrace: 20 * time.Millisecond}, zerolog.Nop())
	defer room.Stop()

	// Mirrored at birth, before anyone joins.
	require.Eventually(t, func() bool {
		return mirror.hasSummary(func(s models.RoomSummary) bool {
			return s.Code == "mir001" && s.Status == models.RoomWaiting && s.PlayerCount == 0
		})
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, room.Join("u1", "Anna"))
	require.Eventually(t, func() bool {
		return mirror.hasSummary(func(s models.RoomSummary) bool {
			return s.Status == models.RoomWaiting && s.PlayerCount == 1
		})
	}, time.Second, 5*time.Millisecond)

	room.Ready("u1")
	require.Eventually(t, func() bool {
		return mirror.hasSummary(func(s models.RoomSummary) bool {
			return s.Status == models.RoomPlaying
		})
	}, time.Second, 5*time.Millisecond)

	// The round times out, the race finishes, and the mirror key is
	// removed when the room closes.
	require.Eventually(t, func() bool {
		return mirror.hasSummary(func(s models.RoomSummary) bool {
			return s.Status == models.RoomFinished
		})
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("finished room was not torn down")
	}
	require.Eventually(t, func() bool {
		codes := mirror.deletedCodes()
		return len(codes) == 1 && codes[0] == "mir001"
	}, time.Second, 5*time.Millisecond)
}

func TestVsComputerRoomStartsWithCountdown(t *testing.T) {
	bus := &fakeBus{}
	config := models.RoomConfig{
		Level:          "A2",
		MaxPlayers:     2,
		QuestionsCount: 1,
		GameMode:       models.ModeVsComputer,
	}
	room := newTestRoom(t, config, testQuestions(1), bus, nil, RoomOptions{
		RoundDuration:  200 * time.Millisecond,
		StartCountdown: 20 * time.Millisecond,
		EmptyRoomGrace: time.Minute,
	})

	bot := StartBot(room, BotConfig{Accuracy: 1.0}, zerolog.Nop())
	require.NotNil(t, bot)

	require.NoError(t, room.Join("human", "Anna"))
	room.Ready("human")

	// The countdown, not the ready signal, starts the game.
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomPlaying
	}, time.Second, 5*time.Millisecond)

	// The bot answers through the normal submission path and the race
	// completes even if the human stays silent.
	require.Eventually(t, func() bool {
		return room.Snapshot().Status == models.RoomFinished
	}, 2*time.Second, 5*time.Millisecond)

	finished := bus.ofType(EventGameFinished)
	require.Len(t, finished, 1)
	board := finished[0].Payload.(GameFinishedPayload).Leaderboard
	require.Len(t, board, 2)

	var botRow *Standing
	for i := range board {
		if board[i].IsBot {
			botRow = &board[i]
		}
	}
	require.NotNil(t, botRow)
	assert.Equal(t, 1, botRow.CorrectAnswers)
}
