package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a Postgres-backed identity store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Users returns a directory bound to the pool.
func (s *PostgresStore) Users() UserDirectory { return &postgresUsers{q: s.db} }

// Credentials returns a credential store bound to the pool.
func (s *PostgresStore) Credentials() CredentialStore { return &postgresCredentials{q: s.db} }

// WithTx runs fn inside a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t postgresTx) Users() UserDirectory         { return &postgresUsers{q: t.tx} }
func (t postgresTx) Credentials() CredentialStore { return &postgresCredentials{q: t.tx} }

type postgresUsers struct {
	q querier
}

const userColumns = `id, name, email, joined, entries, COALESCE(phone, ''), two_factor_enabled,
        COALESCE(two_factor_secret, ''), COALESCE(temp_two_factor_secret, '')`

func (r *postgresUsers) FindByID(ctx context.Context, id int64) (User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *postgresUsers) FindByIDForUpdate(ctx context.Context, id int64) (User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
}

func (r *postgresUsers) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *postgresUsers) scanOne(ctx context.Context, query string, arg any) (User, error) {
	var (
		user   User
		joined time.Time
	)
	err := r.q.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Name, &user.Email, &joined, &user.Entries,
		&user.Phone, &user.TwoFactorEnabled, &user.TwoFactorSecret, &user.TempTwoFactorSecret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	user.Joined = joined.UTC()
	return user, nil
}

func (r *postgresUsers) Save(ctx context.Context, user User) (User, error) {
	if user.ID == 0 {
		err := r.q.QueryRow(ctx, `INSERT INTO users (name, email, joined, entries, phone, two_factor_enabled,
                two_factor_secret, temp_two_factor_secret)
            VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''))
            RETURNING id`,
			user.Name, user.Email, user.Joined.UTC(), user.Entries, user.Phone, user.TwoFactorEnabled,
			user.TwoFactorSecret, user.TempTwoFactorSecret).Scan(&user.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return User{}, ErrDuplicateEmail
			}
			return User{}, fmt.Errorf("insert user: %w", err)
		}
		return user, nil
	}

	cmd, err := r.q.Exec(ctx, `UPDATE users SET name = $1, email = $2, entries = $3, phone = NULLIF($4, ''),
            two_factor_enabled = $5, two_factor_secret = NULLIF($6, ''), temp_two_factor_secret = NULLIF($7, '')
        WHERE id = $8`,
		user.Name, user.Email, user.Entries, user.Phone, user.TwoFactorEnabled,
		user.TwoFactorSecret, user.TempTwoFactorSecret, user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("update user: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return user, nil
}

type postgresCredentials struct {
	q querier
}

func (r *postgresCredentials) FindByEmail(ctx context.Context, email string) (Credential, error) {
	var cred Credential
	err := r.q.QueryRow(ctx, `SELECT email, hash FROM login WHERE email = $1`, email).Scan(&cred.Email, &cred.Hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("query login: %w", err)
	}
	return cred, nil
}

func (r *postgresCredentials) Save(ctx context.Context, cred Credential) error {
	_, err := r.q.Exec(ctx, `INSERT INTO login (email, hash) VALUES ($1, $2)
        ON CONFLICT (email) DO UPDATE SET hash = EXCLUDED.hash`, cred.Email, cred.Hash)
	if err != nil {
		return fmt.Errorf("save login: %w", err)
	}
	return nil
}

func (r *postgresCredentials) Delete(ctx context.Context, cred Credential) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM login WHERE email = $1`, cred.Email); err != nil {
		return fmt.Errorf("delete login: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
