// Package archive persists finished captures: recording and transcript
// artifacts on disk, session metadata and transcript text in Redis for the
// summary API to read back.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/G1r1dhar/MeetBuddy-AI/internal/capture"
	"github.com/G1r1dhar/MeetBuddy-AI/internal/summary"
)

// ErrNotArchived is returned when no archived record exists for an id.
var ErrNotArchived = errors.New("archive: session not archived")

// Config for the archive store.
type Config struct {
	OutputDir       string
	SaveRecordings  bool
	SaveTranscripts bool

	RedisAddr   string
	RedisPrefix string
	TTL         time.Duration
}

// Store implements capture.Archiver.
type Store struct {
	cfg   Config
	redis *redis.Client
}

// New builds a store. With an empty RedisAddr only file artifacts are
// written; with an empty OutputDir only Redis is used.
func New(cfg Config) (*Store, error) {
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = "archive:"
	}
	if (cfg.SaveRecordings || cfg.SaveTranscripts) && cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	st := &Store{cfg: cfg}
	if cfg.RedisAddr != "" {
		st.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return st, nil
}

// ArchiveCapture writes the artifacts of one finished capture. Each target
// is attempted independently; the stop path treats any error as best-effort.
func (st *Store) ArchiveCapture(ctx context.Context, c *capture.CompletedCapture) error {
	transcript := summary.TranscriptText(c.Entries)
	base := fmt.Sprintf("%s_%s_%s",
		c.StartTime.Format("20060102_150405"),
		c.Platform,
		shortID(c.SessionID),
	)

	var errs []error

	if st.cfg.SaveTranscripts && st.cfg.OutputDir != "" && transcript != "" {
		header := fmt.Sprintf("Session ID: %s\nPlatform: %s\nMeeting URL: %s\nStart Time: %s\nDuration: %v\nParticipants: %s\n\n---TRANSCRIPT---\n\n",
			c.SessionID,
			c.Platform,
			c.MeetingURL,
			c.StartTime.Format("2006-01-02 15:04:05"),
			c.EndTime.Sub(c.StartTime).Round(time.Second),
			strings.Join(c.Participants, ", "),
		)
		path := filepath.Join(st.cfg.OutputDir, base+".txt")
		if err := os.WriteFile(path, []byte(header+transcript), 0644); err != nil {
			errs = append(errs, fmt.Errorf("failed to save transcript: %w", err))
		} else {
			log.Info().Str("session", c.SessionID).Str("path", path).Msg("transcript saved")
		}
	}

	if st.cfg.SaveRecordings && st.cfg.OutputDir != "" && len(c.Recording) > 0 {
		path := filepath.Join(st.cfg.OutputDir, base+".webm")
		if err := os.WriteFile(path, c.Recording, 0644); err != nil {
			errs = append(errs, fmt.Errorf("failed to save recording: %w", err))
		} else {
			log.Info().Str("session", c.SessionID).Str("path", path).Int("bytes", len(c.Recording)).Msg("recording saved")
		}
	}

	if st.redis != nil {
		key := st.cfg.RedisPrefix + c.SessionID
		fields := map[string]interface{}{
			"platform":     c.Platform,
			"meeting_url":  c.MeetingURL,
			"start_time":   c.StartTime.Format(time.RFC3339),
			"end_time":     c.EndTime.Format(time.RFC3339),
			"participants": strings.Join(c.Participants, ", "),
			"transcript":   transcript,
			"entry_count":  len(c.Entries),
		}
		if err := st.redis.HSet(ctx, key, fields).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis HSET %s: %w", key, err))
		} else if st.cfg.TTL > 0 {
			if err := st.redis.Expire(ctx, key, st.cfg.TTL).Err(); err != nil {
				errs = append(errs, fmt.Errorf("redis EXPIRE %s: %w", key, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Transcript reads back the archived transcript text for a session.
func (st *Store) Transcript(ctx context.Context, sessionID string) (string, error) {
	if st.redis == nil {
		return "", fmt.Errorf("redis not configured")
	}
	key := st.cfg.RedisPrefix + sessionID
	val, err := st.redis.HGet(ctx, key, "transcript").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotArchived
	}
	if err != nil {
		return "", fmt.Errorf("redis HGET %s: %w", key, err)
	}
	return val, nil
}

// Close releases the Redis connection.
func (st *Store) Close() error {
	if st.redis != nil {
		return st.redis.Close()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
