package identity

import "context"

// UserDirectory persists user profiles.
type UserDirectory interface {
	FindByID(ctx context.Context, id int64) (User, error)
	// FindByIDForUpdate reads the user and holds it until the surrounding
	// transaction ends. Outside a transaction it behaves like FindByID.
	FindByIDForUpdate(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	// Save inserts the user when ID is zero and assigns the new id, otherwise
	// it updates the existing row.
	Save(ctx context.Context, user User) (User, error)
}

// CredentialStore persists password hashes keyed by email.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (Credential, error)
	Save(ctx context.Context, cred Credential) error
	Delete(ctx context.Context, cred Credential) error
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Users() UserDirectory
	Credentials() CredentialStore
}

// Store is the storage boundary. Users and Credentials outside WithTx run
// each call on its own.
type Store interface {
	Tx
	// WithTx runs fn atomically: all writes made through tx are committed when
	// fn returns nil and discarded otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
