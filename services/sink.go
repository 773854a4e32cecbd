package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/ledionnezirii/germanmaster-sub002/models"
)

// RaceOutcome is everything the sink needs to persist a finished race.
type RaceOutcome struct {
	RoomID         string
	Code           string
	Level          string
	GameMode       string
	TotalQuestions int
	FinishedAt     time.Time
	Standings      []Standing
}

// ResultSink persists final results. Best effort relative to the game:
// the room never waits on it and failures stay inside the sink.
type ResultSink interface {
	SaveResults(ctx context.Context, outcome RaceOutcome)
}

// GormResultSink writes result rows and aggregate player stats, retrying
// transient failures with capped exponential backoff.
type GormResultSink struct {
	db   *gorm.DB
	live *LiveBoard
	log  zerolog.Logger
}

func NewGormResultSink(db *gorm.DB, live *LiveBoard, logger zerolog.Logger) *GormResultSink {
	return &GormResultSink{
		db:   db,
		live: live,
		log:  logger.With().Str("component", "result_sink").Logger(),
	}
}

func (s *GormResultSink) SaveResults(ctx context.Context, outcome RaceOutcome) {
	backoff := retry.WithMaxRetries(4, retry.NewExponential(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.save(ctx, outcome); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// Never surfaced to players; the in-memory game already delivered
		// the leaderboard.
		s.log.Error().Err(err).Str("room_id", outcome.RoomID).Msg("persisting race results failed")
		return
	}

	if s.live != nil {
		if err := s.live.WriteFinal(ctx, outcome); err != nil {
			s.log.Warn().Err(err).Str("room_id", outcome.RoomID).Msg("writing final leaderboard to redis failed")
		}
	}

	s.log.Info().Str("room_id", outcome.RoomID).Int("players", len(outcome.Standings)).Msg("race results persisted")
}

func (s *GormResultSink) save(ctx context.Context, outcome RaceOutcome) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, standing := range outcome.Standings {
			if standing.IsBot {
				continue
			}

			result := models.RaceResult{
				RoomID:         outcome.RoomID,
				Code:           outcome.Code,
				Level:          outcome.Level,
				GameMode:       outcome.GameMode,
				UserID:         standing.UserID,
				DisplayName:    standing.DisplayName,
				Rank:           standing.Rank,
				Score:          standing.Score,
				CorrectAnswers: standing.CorrectAnswers,
				TotalQuestions: outcome.TotalQuestions,
				FinishedAt:     outcome.FinishedAt,
			}
			if err := tx.Create(&result).Error; err != nil {
				return fmt.Errorf("creating race result: %w", err)
			}

			if err := s.updateStats(tx, standing); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormResultSink) updateStats(tx *gorm.DB, standing Standing) error {
	var stats models.PlayerStats
	err := tx.Where("user_id = ?", standing.UserID).First(&stats).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("loading player stats: %w", err)
		}
		stats = models.PlayerStats{UserID: standing.UserID}
	}

	stats.GamesPlayed++
	stats.TotalScore += standing.Score
	if standing.Rank == 1 {
		stats.Wins++
	}
	if standing.Score > stats.BestScore {
		stats.BestScore = standing.Score
	}

	if err := tx.Save(&stats).Error; err != nil {
		return fmt.Errorf("saving player stats: %w", err)
	}
	return nil
}

// StateMirror copies room state into external storage for lobby display.
// Purely a display aid; in-memory room state stays authoritative and the
// room never waits on a mirror write.
type StateMirror interface {
	SetScore(ctx context.Context, roomID, userID string, score int)
	SetSummary(ctx context.Context, summary models.RoomSummary)
	DeleteSummary(ctx context.Context, code string)
}

// LiveBoard is the Redis StateMirror: a sorted set of scores per room
// plus a JSON room-summary key, both with a TTL so abandoned keys age
// out on their own.
type LiveBoard struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

func NewLiveBoard(rdb *redis.Client, logger zerolog.Logger) *LiveBoard {
	return &LiveBoard{
		rdb: rdb,
		ttl: 2 * time.Hour,
		log: logger.With().Str("component", "live_board").Logger(),
	}
}

func (l *LiveBoard) key(roomID string) string {
	return "race:lb:" + roomID
}

func (l *LiveBoard) summaryKey(code string) string {
	return "race:room:" + code
}

// SetSummary mirrors the lobby view of a room, keyed by its shareable
// code. Written on creation and on every presence or status change.
func (l *LiveBoard) SetSummary(ctx context.Context, summary models.RoomSummary) {
	data, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := l.rdb.Set(ctx, l.summaryKey(summary.Code), data, l.ttl).Err(); err != nil {
		l.log.Warn().Err(err).Str("code", summary.Code).Msg("mirroring room summary failed")
	}
}

func (l *LiveBoard) DeleteSummary(ctx context.Context, code string) {
	if err := l.rdb.Del(ctx, l.summaryKey(code)).Err(); err != nil {
		l.log.Warn().Err(err).Str("code", code).Msg("removing room summary failed")
	}
}

func (l *LiveBoard) SetScore(ctx context.Context, roomID, userID string, score int) {
	key := l.key(roomID)
	pipe := l.rdb.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: userID})
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn().Err(err).Str("room_id", roomID).Msg("updating live leaderboard failed")
	}
}

// Top returns up to n leaderboard entries, best first.
func (l *LiveBoard) Top(ctx context.Context, roomID string, n int64) ([]redis.Z, error) {
	return l.rdb.ZRevRangeWithScores(ctx, l.key(roomID), 0, n-1).Result()
}

func (l *LiveBoard) WriteFinal(ctx context.Context, outcome RaceOutcome) error {
	key := l.key(outcome.RoomID)
	members := make([]redis.Z, 0, len(outcome.Standings))
	for _, standing := range outcome.Standings {
		members = append(members, redis.Z{Score: float64(standing.Score), Member: standing.UserID})
	}
	pipe := l.rdb.Pipeline()
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
	}
	pipe.Expire(ctx, key, l.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
