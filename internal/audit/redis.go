package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "audit:events"

// RedisSink appends events to a Redis stream capped at roughly maxLen entries.
// Write failures are logged and dropped.
type RedisSink struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisSink builds a stream sink. An empty stream name selects DefaultStream.
func NewRedisSink(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen, timeout: 2 * time.Second, logger: logger}
}

func (s *RedisSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.client == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}

	// outlives request cancellation
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event":   string(event.Name),
			"id":      event.SubjectID,
			"success": strconv.FormatBool(event.Success),
			"reason":  string(event.Reason),
			"time":    event.Time.Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil && s.logger != nil {
		s.logger.Warn("audit stream append failed",
			slog.String("stream", s.stream),
			slog.String("event", string(event.Name)),
			slog.Any("error", err),
		)
	}
}
