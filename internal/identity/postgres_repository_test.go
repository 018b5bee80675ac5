package identity_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/migrations"
)

func newPostgresStore(t *testing.T) *identity.PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := migrations.Up(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE users, login RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return identity.NewPostgresStore(pool)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	joined := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var created identity.User
	err := store.WithTx(ctx, func(tx identity.Tx) error {
		user, err := tx.Users().Save(ctx, identity.User{Name: "Ann", Email: "ann@x.com", Joined: joined})
		if err != nil {
			return err
		}
		created = user
		return tx.Credentials().Save(ctx, identity.Credential{Email: "ann@x.com", Hash: "h1"})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Users().FindByEmail(ctx, "ann@x.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != created.ID || got.Name != "Ann" || !got.Joined.Equal(joined) || got.TwoFactorEnabled {
		t.Fatalf("unexpected user: %+v", got)
	}

	got.TempTwoFactorSecret = "PENDING"
	got.PromoteTwoFactor()
	got.Phone = "+33 6 12 34"
	if _, err := store.Users().Save(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	reloaded, err := store.Users().FindByID(ctx, got.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.TwoFactorEnabled || reloaded.TwoFactorSecret != "PENDING" || reloaded.TempTwoFactorSecret != "" || reloaded.Phone != "+33 6 12 34" {
		t.Fatalf("unexpected reloaded user: %+v", reloaded)
	}

	if err := store.Credentials().Save(ctx, identity.Credential{Email: "ann@x.com", Hash: "h2"}); err != nil {
		t.Fatalf("upsert credential: %v", err)
	}
	cred, err := store.Credentials().FindByEmail(ctx, "ann@x.com")
	if err != nil || cred.Hash != "h2" {
		t.Fatalf("unexpected credential: %+v %v", cred, err)
	}
}

func TestPostgresStoreRollsBack(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx identity.Tx) error {
		if _, err := tx.Users().Save(ctx, identity.User{Name: "Ann", Email: "ann@x.com", Joined: time.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.Users().FindByEmail(ctx, "ann@x.com"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected rollback, got %v", err)
	}
}

func TestPostgresStoreUniqueEmailUnderRace(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	const attempts = 5
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.WithTx(ctx, func(tx identity.Tx) error {
				_, err := tx.Users().Save(ctx, identity.User{Name: "Ann", Email: "ann@x.com", Joined: time.Now()})
				return err
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, identity.ErrDuplicateEmail):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one insert, got %d", ok)
	}
}
