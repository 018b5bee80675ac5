// Package twofactor runs two-phase TOTP enrollment and checks codes at sign-in.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/logging"
	"github.com/cyberella/handson/internal/metrics"
	"github.com/cyberella/handson/internal/totp"
)

// DefaultIssuer labels entries in authenticator apps.
const DefaultIssuer = "hands_on"

// Enrollment is handed to the client to render a QR code. The secret stays
// pending until ConfirmEnrollment succeeds.
type Enrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"otpauth_url"`
}

// Service owns the two-factor fields of identity.User.
type Service struct {
	store   identity.Store
	clock   totp.Clock
	issuer  string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(store identity.Store, clock totp.Clock, issuer string, m *metrics.Metrics, logger *slog.Logger) *Service {
	if clock == nil {
		clock = totp.SystemClock{}
	}
	if issuer == "" {
		issuer = DefaultIssuer
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{store: store, clock: clock, issuer: issuer, metrics: m, logger: logger}
}

// Enroll stores a fresh pending secret for user and returns it with its
// provisioning URI. An already active secret keeps working until the new one
// is confirmed, so a re-enrolling user is enabled and pending at once; only
// ConfirmEnrollment swaps the secrets.
func (s *Service) Enroll(ctx context.Context, user identity.User) (Enrollment, error) {
	secret, err := totp.GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}

	var email string
	err = s.store.WithTx(ctx, func(tx identity.Tx) error {
		current, err := tx.Users().FindByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		current.TempTwoFactorSecret = secret
		if _, err := tx.Users().Save(ctx, current); err != nil {
			return err
		}
		email = current.Email
		return nil
	})
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Enrollment{}, identity.ErrUserNotFound
		}
		return Enrollment{}, fmt.Errorf("enroll two-factor: %w", err)
	}

	s.logger.Info("two-factor enrollment started", slog.Int64("user_id", user.ID))
	return Enrollment{Secret: secret, ProvisioningURI: totp.ProvisioningURI(s.issuer, email, secret)}, nil
}

// ConfirmEnrollment promotes the pending secret once code matches it. The
// user row is locked for the read-check-write so concurrent confirms apply
// once. A wrong code leaves the row untouched.
func (s *Service) ConfirmEnrollment(ctx context.Context, user identity.User, code string) error {
	err := s.store.WithTx(ctx, func(tx identity.Tx) error {
		current, err := tx.Users().FindByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if !current.HasPendingTwoFactor() {
			return identity.ErrTwoFactorNotPending
		}
		ok := totp.Validate(current.TempTwoFactorSecret, code, s.clock.Now())
		s.metrics.TwoFactorCheck("confirm", ok)
		if !ok {
			return identity.ErrInvalidTwoFactorCode
		}
		current.PromoteTwoFactor()
		_, err = tx.Users().Save(ctx, current)
		return err
	})
	switch {
	case err == nil:
		s.logger.Info("two-factor enabled", slog.Int64("user_id", user.ID))
		return nil
	case errors.Is(err, identity.ErrNotFound):
		return identity.ErrUserNotFound
	case errors.Is(err, identity.ErrTwoFactorNotPending), errors.Is(err, identity.ErrInvalidTwoFactorCode):
		s.logger.Warn("two-factor confirmation rejected", slog.Int64("user_id", user.ID), slog.Any("error", err))
		return err
	default:
		return fmt.Errorf("confirm two-factor: %w", err)
	}
}

// Verify checks code against the active secret only. It does not touch
// storage.
func (s *Service) Verify(user identity.User, code string) bool {
	if !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		s.metrics.TwoFactorCheck("verify", false)
		return false
	}
	ok := totp.Validate(user.TwoFactorSecret, code, s.clock.Now())
	s.metrics.TwoFactorCheck("verify", ok)
	return ok
}
