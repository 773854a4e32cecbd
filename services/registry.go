package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

// Registry is the process-wide table of live rooms, indexed by id and by
// the short shareable code. The table itself is the only structure shared
// across rooms; everything inside a room belongs to that room's actor.
type Registry struct {
	mu     sync.Mutex
	byID   map[string]*Room
	byCode map[string]*Room

	bank QuestionBank
	bus  Broadcaster
	sink ResultSink
	live StateMirror
	opts RoomOptions
	bot  *BotConfig
	log  zerolog.Logger
}

// BotConfig shapes the synthetic opponent attached to vs-computer rooms.
type BotConfig struct {
	DisplayName string
	Accuracy    float64
}

func NewRegistry(bank QuestionBank, bus Broadcaster, sink ResultSink, live StateMirror,
	opts RoomOptions, bot *BotConfig, logger zerolog.Logger) *Registry {

	return &Registry{
		byID:   make(map[string]*Room),
		byCode: make(map[string]*Room),
		bank:   bank,
		bus:    bus,
		sink:   sink,
		live:   live,
		opts:   opts,
		bot:    bot,
		log:    logger.With().Str("component", "registry").Logger(),
	}
}

// CreateRoom allocates a room with a fresh id and code, snapshots its
// questions from the bank, and starts its actor.
func (reg *Registry) CreateRoom(ctx context.Context, config models.RoomConfig) (*Room, error) {
	if config.MaxPlayers < 1 || config.QuestionsCount < 1 {
		return nil, fmt.Errorf("%w: max_players=%d questions_count=%d",
			ErrInvalidConfig, config.MaxPlayers, config.QuestionsCount)
	}
	if config.GameMode == "" {
		config.GameMode = models.ModeStandard
	}
	if config.GameMode != models.ModeStandard && config.GameMode != models.ModeVsComputer {
		return nil, fmt.Errorf("%w: unknown game mode %q", ErrInvalidConfig, config.GameMode)
	}

	questions, err := reg.bank.Questions(ctx, config.Level, config.QuestionsCount)
	if err != nil {
		return nil, fmt.Errorf("fetching questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: no questions available for level %q", ErrInvalidConfig, config.Level)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	id := uuid.NewString()
	code := reg.mintCodeLocked()

	room := NewRoom(id, code, config, questions, reg.bus, reg.sink, reg.live, reg.Remove, reg.opts, reg.log)
	reg.byID[id] = room
	reg.byCode[code] = room

	reg.log.Info().Str("room_id", id).Str("code", code).
		Str("level", config.Level).Str("mode", string(config.GameMode)).Msg("room created")

	if config.GameMode == models.ModeVsComputer && reg.bot != nil {
		StartBot(room, *reg.bot, reg.log)
	}

	return room, nil
}

// mintCodeLocked generates a short human-typeable code, collision-checked
// against currently open rooms only; closed rooms free their codes.
func (reg *Registry) mintCodeLocked() string {
	for {
		bytes := make([]byte, 3)
		rand.Read(bytes)
		code := hex.EncodeToString(bytes)[:6]
		if _, taken := reg.byCode[code]; !taken {
			return code
		}
	}
}

func (reg *Registry) FindByID(id string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.byID[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

func (reg *Registry) FindByCode(code string) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.byCode[strings.ToLower(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// ListOpen returns joinable rooms for lobby display, optionally filtered
// by level. Only waiting rooms are joinable.
func (reg *Registry) ListOpen(level string) []models.RoomSummary {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.byID))
	for _, room := range reg.byID {
		rooms = append(rooms, room)
	}
	reg.mu.Unlock()

	// Summaries go through each room's actor; taken outside the table
	// lock so one slow room cannot block the registry.
	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := room.Summary()
		if summary.Status != models.RoomWaiting {
			continue
		}
		if level != "" && summary.Level != level {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

// Remove drops a room from the table and stops its actor. Idempotent;
// also used as the actor's onClose callback.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	room, ok := reg.byID[id]
	if ok {
		delete(reg.byID, id)
		delete(reg.byCode, room.code)
	}
	reg.mu.Unlock()

	if ok {
		room.Stop()
		reg.log.Info().Str("room_id", id).Str("code", room.code).Msg("room removed")
	}
}

// Count reports the number of open rooms.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.byID)
}
