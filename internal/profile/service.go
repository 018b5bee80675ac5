// Package profile reads and edits user profiles. Email changes move the login
// credential along with the user in the same transaction.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/cyberella/handson/internal/audit"
	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/logging"
)

const maxFaceCount = 1000

var phonePattern = regexp.MustCompile(`^[0-9 +()\-]{6,20}$`)

// UpdateRequest carries the fields to change. Nil fields are left alone.
type UpdateRequest struct {
	ID    int64
	Name  *string
	Phone *string
	Email *string
}

type Service struct {
	store  identity.Store
	sink   audit.Sink
	logger *slog.Logger
}

func NewService(store identity.Store, sink audit.Sink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Service{store: store, sink: audit.Safe(sink, logger), logger: logger}
}

// Get loads a user by id.
func (s *Service) Get(ctx context.Context, id int64) (identity.User, error) {
	user, err := s.store.Users().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.User{}, identity.ErrUserNotFound
		}
		return identity.User{}, fmt.Errorf("get profile: %w", err)
	}
	return user, nil
}

// ChangeEmail moves user to newEmail and re-keys its credential. Either the
// user update, the new credential and the old credential's removal all apply
// or none do. Changing to the current email is a no-op.
func (s *Service) ChangeEmail(ctx context.Context, user identity.User, newEmail string) (identity.User, error) {
	var updated identity.User
	err := s.store.WithTx(ctx, func(tx identity.Tx) error {
		current, err := tx.Users().FindByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		updated, err = changeEmail(ctx, tx, current, newEmail)
		return err
	})
	if err != nil {
		return identity.User{}, mapStoreError("change email", err)
	}
	return updated, nil
}

// Update applies name, phone and email changes in one transaction and records
// an UPDATEPROFILE_ATTEMPT event either way.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (identity.User, error) {
	var updated identity.User
	err := s.store.WithTx(ctx, func(tx identity.Tx) error {
		current, err := tx.Users().FindByIDForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return identity.ErrInvalidName
			}
			current.Name = name
		}
		if req.Phone != nil {
			phone := strings.TrimSpace(*req.Phone)
			if phone != "" && !phonePattern.MatchString(phone) {
				return identity.ErrInvalidPhone
			}
			current.Phone = phone
		}

		if req.Email != nil {
			updated, err = changeEmail(ctx, tx, current, NormalizeEmail(*req.Email))
			return err
		}
		updated, err = tx.Users().Save(ctx, current)
		return err
	})
	if err != nil {
		err = mapStoreError("update profile", err)
		s.logger.Warn("profile update rejected", slog.Int64("user_id", req.ID), slog.Any("error", err))
		s.emit(ctx, req.ID, false)
		return identity.User{}, err
	}

	s.emit(ctx, updated.ID, true)
	return updated, nil
}

// IncrementEntries adds faceCount to the user's entries counter, saturating
// at math.MaxInt32.
func (s *Service) IncrementEntries(ctx context.Context, id int64, faceCount int) (identity.User, error) {
	if faceCount < 0 || faceCount > maxFaceCount {
		return identity.User{}, identity.ErrInvalidFaceCount
	}

	var updated identity.User
	err := s.store.WithTx(ctx, func(tx identity.Tx) error {
		current, err := tx.Users().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		total := int64(current.Entries) + int64(faceCount)
		if total > math.MaxInt32 {
			total = math.MaxInt32
		}
		current.Entries = int32(total)
		updated, err = tx.Users().Save(ctx, current)
		return err
	})
	if err != nil {
		return identity.User{}, mapStoreError("increment entries", err)
	}
	return updated, nil
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail is the plausibility check applied before an address is stored.
func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	return strings.TrimSpace(email) != "" && at > 0 && at < len(email)-1
}

func changeEmail(ctx context.Context, tx identity.Tx, user identity.User, newEmail string) (identity.User, error) {
	if !ValidEmail(newEmail) {
		return identity.User{}, identity.ErrInvalidEmailFormat
	}

	owner, err := tx.Users().FindByEmail(ctx, newEmail)
	switch {
	case err == nil && owner.ID != user.ID:
		return identity.User{}, identity.ErrEmailTaken
	case err == nil:
		// already this user's address; persist any other edits as-is
		return tx.Users().Save(ctx, user)
	case !errors.Is(err, identity.ErrNotFound):
		return identity.User{}, err
	}

	oldEmail := user.Email
	user.Email = newEmail
	saved, err := tx.Users().Save(ctx, user)
	if err != nil {
		return identity.User{}, err
	}

	cred, err := tx.Credentials().FindByEmail(ctx, oldEmail)
	if errors.Is(err, identity.ErrNotFound) {
		return saved, nil
	}
	if err != nil {
		return identity.User{}, err
	}
	if err := tx.Credentials().Save(ctx, identity.Credential{Email: newEmail, Hash: cred.Hash}); err != nil {
		return identity.User{}, err
	}
	if err := tx.Credentials().Delete(ctx, cred); err != nil {
		return identity.User{}, err
	}
	return saved, nil
}

func mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return identity.ErrUserNotFound
	case errors.Is(err, identity.ErrDuplicateEmail):
		return identity.ErrEmailTaken
	case errors.Is(err, identity.ErrInvalidName),
		errors.Is(err, identity.ErrInvalidPhone),
		errors.Is(err, identity.ErrInvalidEmailFormat),
		errors.Is(err, identity.ErrEmailTaken):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func (s *Service) emit(ctx context.Context, id int64, success bool) {
	s.sink.Emit(ctx, audit.Event{
		Name:      audit.UpdateProfileAttempt,
		SubjectID: audit.Subject(id),
		Success:   success,
	})
}
