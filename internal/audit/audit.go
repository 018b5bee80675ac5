// Package audit records authentication and profile decisions. Events carry a
// numeric subject id or UnknownSubject and never an email, password, hash or
// TOTP secret.
package audit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// EventName identifies the operation that produced an event.
type EventName string

const (
	SigninAttempt        EventName = "SIGNIN_ATTEMPT"
	RegisterAttempt      EventName = "REGISTER_ATTEMPT"
	UpdateProfileAttempt EventName = "UPDATEPROFILE_ATTEMPT"
)

// Reason is the fine-grained outcome of a decision. Values are consumed by
// downstream log analysis and must stay stable.
type Reason string

const (
	ReasonNoLoginRecord      Reason = "NO_LOGIN_RECORD"
	ReasonPasswordMismatch   Reason = "PASSWORD_MISMATCH"
	ReasonUserProfileMissing Reason = "USER_PROFILE_MISSING"
	ReasonTwoFactorRequired  Reason = "TWO_FA_REQUIRED"
	ReasonSuccess            Reason = "SUCCESS"
	ReasonUnknown            Reason = "UNKNOWN"
)

// UnknownSubject stands in for a subject id that could not be resolved.
const UnknownSubject = "unknown"

// Subject formats a user id for an event.
func Subject(id int64) string {
	if id <= 0 {
		return UnknownSubject
	}
	return strconv.FormatInt(id, 10)
}

// Event is a single write-once audit record.
type Event struct {
	Name      EventName `json:"event"`
	SubjectID string    `json:"id"`
	Success   bool      `json:"success"`
	Reason    Reason    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

// Sink receives events. Emit never fails the caller: implementations handle
// their own errors.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NopSink drops events.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// LoggerSink writes events to a structured logger.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a logging sink.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := []any{
		slog.String("event", string(event.Name)),
		slog.String("id", event.SubjectID),
		slog.Bool("success", event.Success),
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", string(event.Reason)))
	}
	s.logger.InfoContext(ctx, "audit", attrs...)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, event Event) {
	for _, sink := range m {
		if sink != nil {
			sink.Emit(ctx, event)
		}
	}
}

// Safe stamps missing times and turns a panicking sink into a logged warning.
func Safe(sink Sink, logger *slog.Logger) Sink {
	return &safeSink{next: sink, logger: logger, now: time.Now}
}

type safeSink struct {
	next   Sink
	logger *slog.Logger
	now    func() time.Time
}

func (s *safeSink) Emit(ctx context.Context, event Event) {
	if s.next == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = s.now().UTC()
	}
	defer func() {
		if r := recover(); r != nil && s.logger != nil {
			s.logger.Warn("audit sink panicked", slog.String("event", string(event.Name)), slog.Any("panic", r))
		}
	}()
	s.next.Emit(ctx, event)
}

// MemorySink keeps events in memory for tests and local inspection.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything emitted so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Reset forgets recorded events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
