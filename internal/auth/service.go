// Package auth registers accounts and decides sign-in attempts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cyberella/handson/internal/audit"
	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/logging"
	"github.com/cyberella/handson/internal/metrics"
	"github.com/cyberella/handson/internal/password"
)

// Service orchestrates registration and sign-in over the identity store.
type Service struct {
	store   identity.Store
	hasher  password.Hasher
	sink    audit.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the collaborators. metrics may be nil; a nil logger
// discards output.
func NewService(store identity.Store, hasher password.Hasher, sink audit.Sink, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Service{store: store, hasher: hasher, sink: audit.Safe(sink, logger), metrics: m, logger: logger, now: time.Now}
}

// Register creates a user and its login credential in one transaction. The
// email must already be trimmed and lowercased.
func (s *Service) Register(ctx context.Context, name, email, plain string) (identity.User, error) {
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		s.metrics.Registration("conflict")
		return identity.User{}, identity.ErrEmailAlreadyRegistered
	} else if !errors.Is(err, identity.ErrNotFound) {
		s.metrics.Registration("error")
		return identity.User{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		s.metrics.Registration("error")
		return identity.User{}, err
	}

	var created identity.User
	err = s.store.WithTx(ctx, func(tx identity.Tx) error {
		user, err := tx.Users().Save(ctx, identity.User{
			Name:   name,
			Email:  email,
			Joined: s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := tx.Credentials().Save(ctx, identity.Credential{Email: email, Hash: hash}); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			s.metrics.Registration("conflict")
			return identity.User{}, identity.ErrEmailAlreadyRegistered
		}
		s.metrics.Registration("error")
		return identity.User{}, fmt.Errorf("register: %w", err)
	}

	s.metrics.Registration("success")
	s.logger.Info("user registered", slog.Int64("user_id", created.ID))
	return created, nil
}

// Signin checks credentials and returns exactly one of Success,
// TwoFactorRequired or Failure. Every path, including storage errors, emits one
// SIGNIN_ATTEMPT audit event.
func (s *Service) Signin(ctx context.Context, email, plain string) (Outcome, error) {
	cred, err := s.store.Credentials().FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, s.abort(ctx, fmt.Errorf("lookup login: %w", err))
		}
		return s.fail(ctx, s.subjectFor(ctx, email), audit.ReasonNoLoginRecord), nil
	}

	if !s.hasher.Verify(plain, cred.Hash) {
		return s.fail(ctx, s.subjectFor(ctx, email), audit.ReasonPasswordMismatch), nil
	}

	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, s.abort(ctx, fmt.Errorf("lookup user: %w", err))
		}
		// login row without a profile; reported, not repaired
		return s.fail(ctx, audit.UnknownSubject, audit.ReasonUserProfileMissing), nil
	}

	if user.TwoFactorEnabled {
		s.emit(ctx, audit.Subject(user.ID), true, audit.ReasonTwoFactorRequired)
		return TwoFactorRequired{UserID: user.ID}, nil
	}

	s.emit(ctx, audit.Subject(user.ID), true, audit.ReasonSuccess)
	return Success{User: user}, nil
}

// subjectFor resolves an id for the audit trail only. Lookup errors yield
// audit.UnknownSubject.
func (s *Service) subjectFor(ctx context.Context, email string) string {
	user, err := s.store.Users().FindByEmail(ctx, email)
	if err != nil {
		return audit.UnknownSubject
	}
	return audit.Subject(user.ID)
}

func (s *Service) fail(ctx context.Context, subject string, reason audit.Reason) Outcome {
	s.logger.Warn("signin rejected", slog.String("id", subject), slog.String("reason", string(reason)))
	s.emit(ctx, subject, false, reason)
	return Failure{Reason: reason}
}

func (s *Service) abort(ctx context.Context, err error) error {
	s.logger.Error("signin aborted", slog.Any("error", err))
	s.emit(ctx, audit.UnknownSubject, false, audit.ReasonUnknown)
	return err
}

func (s *Service) emit(ctx context.Context, subject string, success bool, reason audit.Reason) {
	s.metrics.Signin(string(reason))
	s.sink.Emit(ctx, audit.Event{
		Name:      audit.SigninAttempt,
		SubjectID: subject,
		Success:   success,
		Reason:    reason,
		Time:      s.now().UTC(),
	})
}
