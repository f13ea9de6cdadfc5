// Package events publishes review progress to Redis streams so clients can
// follow a running review over SSE.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/osiDTDr/ai-contract-review/internal/review"
)

const (
	TypeStage = "stage"
	TypeDone  = "done"
)

// StreamClient is the part of *redis.Client the publisher and reader use.
type StreamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

type Config struct {
	Prefix string
	MaxLen int64
	TTL    time.Duration
}

// Event is one message on a review stream.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Stage     string          `json:"stage,omitempty"`
	Status    string          `json:"status"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Entry     json.RawMessage `json:"entry,omitempty"`
}

type Stream struct {
	client StreamClient
	cfg    Config
	logger *slog.Logger
}

func New(client StreamClient, cfg Config, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "review_events"
	}
	return &Stream{client: client, cfg: cfg, logger: logger}
}

func (s *Stream) Key(reviewID int64) string {
	return fmt.Sprintf("%s:%d", s.cfg.Prefix, reviewID)
}

// Publish appends one trace entry to the review's stream.
func (s *Stream) Publish(ctx context.Context, reviewID int64, entry review.TraceEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal trace entry: %w", err)
	}
	return s.add(ctx, reviewID, map[string]any{
		"type":   TypeStage,
		"stage":  entry.StageName,
		"status": string(entry.Status),
		"entry":  string(raw),
	})
}

// Done marks the end of a review. status is "completed" or "failed".
func (s *Stream) Done(ctx context.Context, reviewID int64, status string, kind review.ErrorKind) error {
	fields := map[string]any{
		"type":   TypeDone,
		"status": status,
	}
	if kind != review.KindNone {
		fields["error_kind"] = string(kind)
	}
	return s.add(ctx, reviewID, fields)
}

func (s *Stream) add(ctx context.Context, reviewID int64, fields map[string]any) error {
	key := s.Key(reviewID)
	args := &redis.XAddArgs{Stream: key, Values: fields}
	if s.cfg.MaxLen > 0 {
		args.MaxLen = s.cfg.MaxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("publish review event: %w", err)
	}
	if s.cfg.TTL > 0 {
		if err := s.client.Expire(ctx, key, s.cfg.TTL).Err(); err != nil {
			return fmt.Errorf("expire review stream: %w", err)
		}
	}

	s.logger.DebugContext(ctx, "published review event", "stream", key, "type", fields["type"], "status", fields["status"])
	return nil
}

// Read blocks up to block for events after lastID ("0" reads from the
// start). It returns no events and no error when the wait times out.
func (s *Stream) Read(ctx context.Context, reviewID int64, lastID string, block time.Duration) ([]Event, error) {
	if lastID == "" {
		lastID = "0"
	}
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{s.Key(reviewID), lastID},
		Block:   block,
		Count:   100,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("read review events: %w", err)
	}

	var out []Event
	for _, stream := range res {
		for _, msg := range stream.Messages {
			out = append(out, decode(msg))
		}
	}
	return out, nil
}

func decode(msg redis.XMessage) Event {
	ev := Event{
		ID:        msg.ID,
		Type:      str(msg.Values["type"]),
		Stage:     str(msg.Values["stage"]),
		Status:    str(msg.Values["status"]),
		ErrorKind: str(msg.Values["error_kind"]),
	}
	if raw := str(msg.Values["entry"]); raw != "" {
		ev.Entry = json.RawMessage(raw)
	}
	return ev
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
