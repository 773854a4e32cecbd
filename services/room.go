package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

// RoomOptions tunes the per-room timers. Production values come from
// config; tests shrink them.
type RoomOptions struct {
	RoundDuration  time.Duration
	EmptyRoomGrace time.Duration
	FinishedGrace  time.Duration
	StartCountdown time.Duration // vs-computer auto-start delay
}

func (o RoomOptions) withDefaults() RoomOptions {
	if o.RoundDuration <= 0 {
		o.RoundDuration = 10 * time.Second
	}
	if o.EmptyRoomGrace <= 0 {
		o.EmptyRoomGrace = 30 * time.Second
	}
	if o.FinishedGrace <= 0 {
		o.FinishedGrace = 60 * time.Second
	}
	return o
}

// Room owns all mutable state for one race. Every mutation runs on the
// room's own goroutine: public methods enqueue events and the run loop
// applies them one at a time, in arrival order. That ordering is what
// clients observe through the broadcast bus.
type Room struct {
	id        string
	code      string
	config    models.RoomConfig
	questions []models.Question
	opts      RoomOptions

	bus     Broadcaster
	sink    ResultSink
	live    StateMirror
	onClose func(roomID string)
	log     zerolog.Logger

	// Owned by the run goroutine.
	observers        []ObserverFunc
	status           models.RoomStatus
	current          int
	players          map[string]*models.Player
	joinOrder        []string
	questionOpenedAt time.Time
	roundTimer       *time.Timer
	graceTimer       *time.Timer
	startTimer       *time.Timer

	events   chan roomEvent
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type roomEvent interface{}

type joinEvent struct {
	userID      string
	displayName string
	isBot       bool
	reply       chan error
}

type readyEvent struct{ userID string }

type answerEvent struct {
	userID        string
	questionIndex int
	optionIndex   int
	timeSpentMs   int64
	reply         chan error
}

type leaveEvent struct{ userID string }

type disconnectEvent struct{ userID string }

// timerExpiredEvent carries the question index the timer was armed for so
// a stale timer can never advance a later round.
type timerExpiredEvent struct{ questionIndex int }

type startCountdownEvent struct{}

type graceExpiredEvent struct{}

type snapshotEvent struct{ reply chan models.RoomSnapshot }

type syncEvent struct{ userID string }

type addObserverEvent struct{ fn ObserverFunc }

// ObserverFunc receives every event the room broadcasts, in order, on the
// room's own goroutine. Observers must not block; the vs-computer answer
// policy is the one production observer.
type ObserverFunc func(eventType string, payload interface{})

func NewRoom(id, code string, config models.RoomConfig, questions []models.Question,
	bus Broadcaster, sink ResultSink, live StateMirror, onClose func(roomID string),
	opts RoomOptions, logger zerolog.Logger) *Room {

	r := &Room{
		id:        id,
		code:      code,
		config:    config,
		questions: questions,
		opts:      opts.withDefaults(),
		bus:       bus,
		sink:      sink,
		live:      live,
		onClose:   onClose,
		log:       logger.With().Str("component", "room").Str("room_id", id).Str("code", code).Logger(),
		status:    models.RoomWaiting,
		current:   -1,
		players:   make(map[string]*models.Player),
		events:    make(chan roomEvent, 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Room) ID() string                { return r.id }
func (r *Room) Code() string              { return r.code }
func (r *Room) Config() models.RoomConfig { return r.config }

// Questions returns a copy for collaborators outside the actor, such as
// the vs-computer answer policy.
func (r *Room) Questions() []models.Question {
	out := make([]models.Question, len(r.questions))
	copy(out, r.questions)
	return out
}

// Join admits a new player while the room is waiting, or re-attaches a
// returning userId in any state. Score and answers survive a reconnect.
func (r *Room) Join(userID, displayName string) error {
	return r.join(userID, displayName, false)
}

func (r *Room) join(userID, displayName string, isBot bool) error {
	reply := make(chan error, 1)
	if !r.send(joinEvent{userID: userID, displayName: displayName, isBot: isBot, reply: reply}) {
		return ErrRoomNotJoinable
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomNotJoinable
		}
	}
}

// Ready records a ready signal. Late, duplicate or unknown signals are
// ignored rather than rejected.
func (r *Room) Ready(userID string) {
	r.send(readyEvent{userID: userID})
}

// SubmitAnswer accepts the first answer a connected player submits for
// the current question; everything else fails with ErrAnswerRejected.
func (r *Room) SubmitAnswer(userID string, questionIndex, optionIndex int, timeSpentMs int64) error {
	reply := make(chan error, 1)
	if !r.send(answerEvent{userID: userID, questionIndex: questionIndex, optionIndex: optionIndex, timeSpentMs: timeSpentMs, reply: reply}) {
		return ErrAnswerRejected
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrAnswerRejected
		}
	}
}

// Leave removes a waiting player from the room; during play it behaves
// like a disconnect so the final leaderboard keeps the player's row.
func (r *Room) Leave(userID string) {
	r.send(leaveEvent{userID: userID})
}

// Disconnect marks a player's connection as lost without dropping them
// from the room, so a later Join with the same userId can resume.
func (r *Room) Disconnect(userID string) {
	r.send(disconnectEvent{userID: userID})
}

// Snapshot returns a copy of the room state, safe to read concurrently.
func (r *Room) Snapshot() models.RoomSnapshot {
	reply := make(chan models.RoomSnapshot, 1)
	if !r.send(snapshotEvent{reply: reply}) {
		return models.RoomSnapshot{ID: r.id, Code: r.code, Status: models.RoomFinished}
	}
	select {
	case snap := <-reply:
		return snap
	case <-r.done:
		select {
		case snap := <-reply:
			return snap
		default:
			return models.RoomSnapshot{ID: r.id, Code: r.code, Status: models.RoomFinished}
		}
	}
}

// Summary is the lobby view of the room.
func (r *Room) Summary() models.RoomSummary {
	snap := r.Snapshot()
	return models.RoomSummary{
		ID:          snap.ID,
		Code:        snap.Code,
		Level:       snap.Level,
		MaxPlayers:  snap.MaxPlayers,
		PlayerCount: len(snap.Players),
		Status:      snap.Status,
		GameMode:    snap.GameMode,
	}
}

// Sync pushes an authoritative room_state snapshot to one player. Called
// after the player's socket attaches to the hub; broadcasts emitted
// before that point never reached the fresh connection, the snapshot
// does.
func (r *Room) Sync(userID string) {
	r.send(syncEvent{userID: userID})
}

// Observe registers an in-process event observer.
func (r *Room) Observe(fn ObserverFunc) {
	r.send(addObserverEvent{fn: fn})
}

// Stop tears the room down. Idempotent; also reachable from the room's
// own loop via grace timers.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Done is closed once the room's loop has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) send(ev roomEvent) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// post is send for the room's own timers; drops silently after shutdown.
func (r *Room) post(ev roomEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

func (r *Room) run() {
	// A room nobody ever connects to must still go away.
	r.armGrace(r.opts.EmptyRoomGrace)
	r.mirrorSummary()

	defer func() {
		r.stopTimers()
		close(r.done)
		r.drain()
		if r.live != nil {
			go r.live.DeleteSummary(context.Background(), r.code)
		}
		if r.onClose != nil {
			r.onClose(r.id)
		}
		r.log.Info().Msg("room closed")
	}()

	for {
		select {
		case <-r.stop:
			return
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

// drain answers any request that slipped in during shutdown so callers
// never block on a dead room.
func (r *Room) drain() {
	for {
		select {
		case ev := <-r.events:
			switch e := ev.(type) {
			case joinEvent:
				e.reply <- ErrRoomNotJoinable
			case answerEvent:
				e.reply <- ErrAnswerRejected
			case snapshotEvent:
				e.reply <- models.RoomSnapshot{ID: r.id, Code: r.code, Status: models.RoomFinished}
			}
		default:
			return
		}
	}
}

func (r *Room) handle(ev roomEvent) {
	switch e := ev.(type) {
	case joinEvent:
		e.reply <- r.handleJoin(e)
	case readyEvent:
		r.handleReady(e.userID)
	case answerEvent:
		e.reply <- r.handleAnswer(e)
	case leaveEvent:
		r.handleLeave(e.userID)
	case disconnectEvent:
		r.handleDisconnect(e.userID)
	case timerExpiredEvent:
		r.handleRoundTimeout(e.questionIndex)
	case startCountdownEvent:
		if r.status == models.RoomWaiting && r.quorumReady() {
			r.startGame()
		}
	case graceExpiredEvent:
		r.handleGraceExpired()
	case snapshotEvent:
		e.reply <- r.snapshot()
	case syncEvent:
		r.handleSync(e.userID)
	case addObserverEvent:
		r.observers = append(r.observers, e.fn)
	}
}

// emit broadcasts to every connection in the room and tells observers.
func (r *Room) emit(eventType string, payload interface{}) {
	r.bus.BroadcastToRoom(r.id, eventType, payload)
	for _, fn := range r.observers {
		fn(eventType, payload)
	}
}

func (r *Room) emitExcept(exceptUserID, eventType string, payload interface{}) {
	r.bus.BroadcastToRoomExcept(r.id, exceptUserID, eventType, payload)
	for _, fn := range r.observers {
		fn(eventType, payload)
	}
}

func (r *Room) handleJoin(e joinEvent) error {
	if p, ok := r.players[e.userID]; ok {
		// Reconnect: re-attach without touching score or answers. A
		// finished room keeps its teardown window armed regardless.
		p.ConnectionState = models.PlayerConnected
		if r.status != models.RoomFinished && r.connectedCount() > 0 {
			r.cancelGrace()
		}
		r.log.Info().Str("user_id", e.userID).Msg("player reconnected")
		r.emit(EventPlayerJoined, PlayersPayload{Players: r.playerList()})
		return nil
	}

	if r.status != models.RoomWaiting {
		return ErrRoomNotJoinable
	}
	if len(r.players) >= r.config.MaxPlayers {
		return ErrRoomNotJoinable
	}

	p := &models.Player{
		UserID:          e.userID,
		DisplayName:     e.displayName,
		Answers:         make(map[int]models.Answer),
		ConnectionState: models.PlayerConnected,
		IsBot:           e.isBot,
		IsReady:         e.isBot, // the synthetic opponent never blocks the ready check
	}
	r.players[e.userID] = p
	r.joinOrder = append(r.joinOrder, e.userID)
	// A bot alone must not keep an otherwise empty room alive.
	if r.connectedCount() > 0 {
		r.cancelGrace()
	}

	r.log.Info().Str("user_id", e.userID).Str("name", e.displayName).Int("players", len(r.players)).Msg("player joined")
	r.emit(EventPlayerJoined, PlayersPayload{Players: r.playerList()})
	r.mirrorSummary()
	return nil
}

func (r *Room) handleSync(userID string) {
	p, ok := r.players[userID]
	if !ok {
		return
	}
	// The stale socket's unregister can land between the join and this
	// sync; the freshly attached socket wins.
	p.ConnectionState = models.PlayerConnected
	r.bus.SendToPlayer(r.id, userID, EventRoomState, r.snapshot())
}

func (r *Room) handleReady(userID string) {
	if r.status != models.RoomWaiting {
		return
	}
	p, ok := r.players[userID]
	if !ok || !p.Connected() || p.IsReady {
		return
	}
	p.IsReady = true

	r.log.Debug().Str("user_id", userID).Msg("player ready")
	r.emit(EventPlayerReady, PlayersPayload{Players: r.playerList()})

	if !r.quorumReady() {
		return
	}
	if r.config.GameMode == models.ModeVsComputer && r.opts.StartCountdown > 0 {
		if r.startTimer == nil {
			r.startTimer = time.AfterFunc(r.opts.StartCountdown, func() { r.post(startCountdownEvent{}) })
		}
		return
	}
	r.startGame()
}

// quorumReady holds when every connected player has signaled ready and at
// least one player is connected. Disconnected players never stall the
// check.
func (r *Room) quorumReady() bool {
	connected := 0
	for _, p := range r.players {
		if !p.Connected() {
			continue
		}
		connected++
		if !p.IsReady {
			return false
		}
	}
	return connected > 0
}

func (r *Room) startGame() {
	r.status = models.RoomPlaying
	r.current = 0
	r.questionOpenedAt = time.Now()
	r.armRoundTimer(0)

	r.log.Info().Int("questions", len(r.questions)).Msg("game started")
	r.mirrorSummary()
	r.emit(EventGameStarted, GameStartedPayload{
		Question:       r.questions[0].View(r.opts.RoundDuration.Milliseconds()),
		QuestionIndex:  0,
		TotalQuestions: len(r.questions),
	})
}

func (r *Room) handleAnswer(e answerEvent) error {
	if r.status != models.RoomPlaying {
		return ErrAnswerRejected
	}
	p, ok := r.players[e.userID]
	if !ok || !p.Connected() {
		return ErrAnswerRejected
	}
	if e.questionIndex != r.current {
		return ErrAnswerRejected
	}
	if _, dup := p.Answers[r.current]; dup {
		return ErrAnswerRejected
	}
	question := r.questions[r.current]
	if e.optionIndex < 0 || e.optionIndex >= len(question.Options) {
		return ErrAnswerRejected
	}

	// The server clock is authoritative; the client-reported time is kept
	// for display only.
	elapsed := time.Since(r.questionOpenedAt)
	if elapsed >= r.opts.RoundDuration {
		return ErrAnswerRejected
	}

	correct := e.optionIndex == question.CorrectOptionIndex
	points := CalculatePoints(elapsed, r.opts.RoundDuration, correct)

	p.Answers[r.current] = models.Answer{
		OptionIndex:   e.optionIndex,
		TimeSpentMs:   e.timeSpentMs,
		SubmittedAtMs: elapsed.Milliseconds(),
		IsCorrect:     correct,
		Points:        points,
	}
	p.Score += points
	if correct {
		p.CorrectAnswers++
	}

	r.log.Debug().Str("user_id", e.userID).Int("question", r.current).
		Bool("correct", correct).Int("points", points).Msg("answer accepted")

	// Others learn that the player answered, never what they answered.
	r.emitExcept(e.userID, EventPlayerAnswered, PlayerAnsweredPayload{
		UserID:        e.userID,
		QuestionIndex: r.current,
	})

	if r.live != nil {
		go r.live.SetScore(context.Background(), r.id, p.UserID, p.Score)
	}

	if r.allConnectedAnswered() {
		r.advanceRound()
	}
	return nil
}

func (r *Room) allConnectedAnswered() bool {
	connected := 0
	for _, p := range r.players {
		if !p.Connected() {
			continue
		}
		connected++
		if _, ok := p.Answers[r.current]; !ok {
			return false
		}
	}
	return connected > 0
}

func (r *Room) handleRoundTimeout(questionIndex int) {
	// Stale-timer guard: a timer armed for an earlier question must not
	// advance the current one.
	if r.status != models.RoomPlaying || questionIndex != r.current {
		return
	}
	r.log.Debug().Int("question", questionIndex).Msg("round timer expired")
	r.advanceRound()
}

// advanceRound closes the current round, exactly once per question, and
// either opens the next one or finishes the race. Players without an
// accepted answer for the closed round simply scored zero.
func (r *Room) advanceRound() {
	r.stopRoundTimer()

	if r.current >= len(r.questions)-1 {
		r.finish()
		return
	}

	r.current++
	r.questionOpenedAt = time.Now()
	r.armRoundTimer(r.current)

	r.emit(EventNextQuestion, NextQuestionPayload{
		Question:      r.questions[r.current].View(r.opts.RoundDuration.Milliseconds()),
		QuestionIndex: r.current,
		Leaderboard:   ComputeLeaderboard(r.players, r.joinOrder),
	})
}

func (r *Room) finish() {
	r.status = models.RoomFinished
	leaderboard := ComputeLeaderboard(r.players, r.joinOrder)

	r.log.Info().Int("players", len(r.players)).Msg("game finished")
	r.mirrorSummary()
	r.emit(EventGameFinished, GameFinishedPayload{
		Leaderboard:    leaderboard,
		TotalQuestions: len(r.questions),
	})

	// Persistence is best effort and must never delay the leaderboard.
	if r.sink != nil {
		outcome := RaceOutcome{
			RoomID:         r.id,
			Code:           r.code,
			Level:          r.config.Level,
			GameMode:       string(r.config.GameMode),
			TotalQuestions: len(r.questions),
			FinishedAt:     time.Now(),
			Standings:      leaderboard,
		}
		go r.sink.SaveResults(context.Background(), outcome)
	}

	r.armGrace(r.opts.FinishedGrace)
}

func (r *Room) handleLeave(userID string) {
	p, ok := r.players[userID]
	if !ok {
		return
	}

	if r.status == models.RoomWaiting {
		delete(r.players, userID)
		for i, id := range r.joinOrder {
			if id == userID {
				r.joinOrder = append(r.joinOrder[:i], r.joinOrder[i+1:]...)
				break
			}
		}
		r.log.Info().Str("user_id", userID).Msg("player left")
		r.emit(EventPlayerLeft, PlayerLeftPayload{
			UserID: userID, Reason: "left", Players: r.playerList(),
		})
		r.mirrorSummary()
		r.afterPresenceChange()
		return
	}

	// Mid-game a leave keeps the player's row so the final leaderboard is
	// complete and the same userId can still come back.
	p.ConnectionState = models.PlayerDisconnected
	r.log.Info().Str("user_id", userID).Msg("player left mid-game")
	r.emit(EventPlayerLeft, PlayerLeftPayload{
		UserID: userID, Reason: "left", Players: r.playerList(),
	})
	r.afterPresenceChange()
}

func (r *Room) handleDisconnect(userID string) {
	p, ok := r.players[userID]
	if !ok || !p.Connected() {
		return
	}
	p.ConnectionState = models.PlayerDisconnected

	r.log.Info().Str("user_id", userID).Msg("player disconnected")
	r.emit(EventPlayerLeft, PlayerLeftPayload{
		UserID: userID, Reason: "disconnected", Players: r.playerList(),
	})
	r.afterPresenceChange()
}

// afterPresenceChange re-evaluates every quorum that a departure can
// satisfy and arms the empty-room grace window when nobody is left.
func (r *Room) afterPresenceChange() {
	if r.connectedCount() == 0 {
		r.armGrace(r.opts.EmptyRoomGrace)
		return
	}

	switch r.status {
	case models.RoomWaiting:
		if r.quorumReady() {
			if r.config.GameMode == models.ModeVsComputer && r.opts.StartCountdown > 0 {
				if r.startTimer == nil {
					r.startTimer = time.AfterFunc(r.opts.StartCountdown, func() { r.post(startCountdownEvent{}) })
				}
			} else {
				r.startGame()
			}
		}
	case models.RoomPlaying:
		if r.allConnectedAnswered() {
			r.advanceRound()
		}
	}
}

func (r *Room) connectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected() && !p.IsBot {
			n++
		}
	}
	return n
}

func (r *Room) handleGraceExpired() {
	// Re-check: a reconnect since arming cancels the teardown.
	if r.status != models.RoomFinished && r.connectedCount() > 0 {
		return
	}
	r.log.Info().Str("status", string(r.status)).Msg("grace window expired, tearing down")
	r.Stop()
}

func (r *Room) armRoundTimer(questionIndex int) {
	r.stopRoundTimer()
	r.roundTimer = time.AfterFunc(r.opts.RoundDuration, func() {
		r.post(timerExpiredEvent{questionIndex: questionIndex})
	})
}

func (r *Room) stopRoundTimer() {
	if r.roundTimer != nil {
		r.roundTimer.Stop()
		r.roundTimer = nil
	}
}

func (r *Room) armGrace(d time.Duration) {
	r.cancelGrace()
	r.graceTimer = time.AfterFunc(d, func() { r.post(graceExpiredEvent{}) })
}

func (r *Room) cancelGrace() {
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

func (r *Room) stopTimers() {
	r.stopRoundTimer()
	r.cancelGrace()
	if r.startTimer != nil {
		r.startTimer.Stop()
		r.startTimer = nil
	}
}

// mirrorSummary pushes the lobby view to the state mirror; dispatched off
// the loop so a slow Redis never stalls the room.
func (r *Room) mirrorSummary() {
	if r.live == nil {
		return
	}
	summary := models.RoomSummary{
		ID:          r.id,
		Code:        r.code,
		Level:       r.config.Level,
		MaxPlayers:  r.config.MaxPlayers,
		PlayerCount: len(r.players),
		Status:      r.status,
		GameMode:    r.config.GameMode,
	}
	go r.live.SetSummary(context.Background(), summary)
}

// playerList copies player state in join order for broadcast payloads.
func (r *Room) playerList() []models.Player {
	out := make([]models.Player, 0, len(r.joinOrder))
	for _, id := range r.joinOrder {
		if p, ok := r.players[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func (r *Room) snapshot() models.RoomSnapshot {
	snap := models.RoomSnapshot{
		ID:                   r.id,
		Code:                 r.code,
		Level:                r.config.Level,
		MaxPlayers:           r.config.MaxPlayers,
		QuestionsCount:       len(r.questions),
		GameMode:             r.config.GameMode,
		Status:               r.status,
		CurrentQuestionIndex: r.current,
		Players:              r.playerList(),
	}
	if r.status == models.RoomPlaying {
		view := r.questions[r.current].View(r.opts.RoundDuration.Milliseconds())
		snap.CurrentQuestion = &view
	}
	return snap
}
