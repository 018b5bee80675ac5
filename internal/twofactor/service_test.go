package twofactor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/totp"
)

type fixture struct {
	svc   *Service
	store *identity.MemoryStore
	now   time.Time
	user  identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: identity.NewMemoryStore(), now: time.Unix(1_700_000_015, 0)}
	f.svc = NewService(f.store, totp.ClockFunc(func() time.Time { return f.now }), "", nil, nil)

	user, err := f.store.Users().Save(context.Background(), identity.User{Name: "Ann", Email: "ann@x.com", Joined: f.now})
	if err != nil {
		t.Fatalf("save user: %v", err)
	}
	f.user = user
	return f
}

func (f *fixture) reload(t *testing.T) identity.User {
	t.Helper()
	user, err := f.store.Users().FindByID(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return user
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.Code(secret, at)
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	return code
}

func TestEnrollStoresPendingSecret(t *testing.T) {
	f := newFixture(t)

	enrollment, err := f.svc.Enroll(context.Background(), f.user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if len(enrollment.Secret) < 16 {
		t.Fatalf("secret too short: %q", enrollment.Secret)
	}
	if !strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/hands_on:ann@x.com?") {
		t.Fatalf("unexpected uri %q", enrollment.ProvisioningURI)
	}

	user := f.reload(t)
	if user.TempTwoFactorSecret != enrollment.Secret {
		t.Fatalf("pending secret not stored")
	}
	if user.TwoFactorEnabled || user.TwoFactorSecret != "" {
		t.Fatalf("enroll must not activate two-factor: %+v", user)
	}
}

func TestEnrollUnknownUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Enroll(context.Background(), identity.User{ID: 999}); !errors.Is(err, identity.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestConfirmEnrollmentPromotesSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enrollment, err := f.svc.Enroll(ctx, f.user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}

	if err := f.svc.ConfirmEnrollment(ctx, f.user, codeAt(t, enrollment.Secret, f.now)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	user := f.reload(t)
	if !user.TwoFactorEnabled || user.TwoFactorSecret != enrollment.Secret || user.TempTwoFactorSecret != "" {
		t.Fatalf("unexpected state after confirm: %+v", user)
	}
}

func TestConfirmEnrollmentWrongCodeLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enrollment, err := f.svc.Enroll(ctx, f.user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	wrong := "000000"
	for i := 1; totp.Validate(enrollment.Secret, wrong, f.now); i++ {
		wrong = strings.Repeat(string(rune('0'+i)), totp.Digits)
	}

	if err := f.svc.ConfirmEnrollment(ctx, f.user, wrong); !errors.Is(err, identity.ErrInvalidTwoFactorCode) {
		t.Fatalf("expected ErrInvalidTwoFactorCode, got %v", err)
	}

	user := f.reload(t)
	if user.TwoFactorEnabled || user.TempTwoFactorSecret != enrollment.Secret || user.TwoFactorSecret != "" {
		t.Fatalf("wrong code mutated user: %+v", user)
	}
}

func TestConfirmEnrollmentWithoutPending(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.ConfirmEnrollment(context.Background(), f.user, "123456"); !errors.Is(err, identity.ErrTwoFactorNotPending) {
		t.Fatalf("expected ErrTwoFactorNotPending, got %v", err)
	}
}

func TestConfirmEnrollmentConcurrentAppliesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enrollment, err := f.svc.Enroll(ctx, f.user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	code := codeAt(t, enrollment.Secret, f.now)

	const attempts = 6
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.svc.ConfirmEnrollment(ctx, f.user, code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				oks++
			case errors.Is(err, identity.ErrTwoFactorNotPending):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if oks != 1 {
		t.Fatalf("expected exactly one confirm to apply, got %d", oks)
	}
}

func TestVerifyWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	enrollment, err := f.svc.Enroll(ctx, f.user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	issued := f.now
	code := codeAt(t, enrollment.Secret, issued)

	// pending secrets are not usable for sign-in
	if f.svc.Verify(f.reload(t), code) {
		t.Fatalf("verify accepted a pending secret")
	}

	if err := f.svc.ConfirmEnrollment(ctx, f.user, code); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	user := f.reload(t)

	for _, offset := range []time.Duration{0, 29 * time.Second, -29 * time.Second} {
		f.now = issued.Add(offset)
		if !f.svc.Verify(user, code) {
			t.Fatalf("expected code to verify at offset %s", offset)
		}
	}

	f.now = issued.Add(61 * time.Second)
	if f.svc.Verify(user, code) {
		t.Fatalf("expected code to be rejected at +61s")
	}
}

func TestVerifyWithoutActiveSecret(t *testing.T) {
	f := newFixture(t)
	if f.svc.Verify(f.user, "123456") {
		t.Fatalf("verify must fail without an active secret")
	}
}

func TestReenrollKeepsActiveSecretUntilConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Enroll(ctx, f.user)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if err := f.svc.ConfirmEnrollment(ctx, f.user, codeAt(t, first.Secret, f.now)); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	second, err := f.svc.Enroll(ctx, f.user)
	if err != nil {
		t.Fatalf("re-enroll: %v", err)
	}
	user := f.reload(t)
	if !user.TwoFactorEnabled || user.TwoFactorSecret != first.Secret || user.TempTwoFactorSecret != second.Secret {
		t.Fatalf("re-enroll must leave the active secret in place: %+v", user)
	}
	if !f.svc.Verify(user, codeAt(t, first.Secret, f.now)) {
		t.Fatalf("active secret should still verify while re-enrollment is pending")
	}

	if err := f.svc.ConfirmEnrollment(ctx, user, codeAt(t, second.Secret, f.now)); err != nil {
		t.Fatalf("confirm re-enrollment: %v", err)
	}
	user = f.reload(t)
	if user.TwoFactorSecret != second.Secret || user.HasPendingTwoFactor() {
		t.Fatalf("expected new secret active and nothing pending: %+v", user)
	}
}
