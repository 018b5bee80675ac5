// Package password hashes and checks account passwords.
package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns a password into an opaque salted hash and checks candidates
// against it. Verify never reports a mismatch as an error.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// Bcrypt implements Hasher with golang.org/x/crypto/bcrypt. The salt is
// embedded in the hash so two calls for the same password differ.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. Costs outside bcrypt's range fall back
// to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

func (b *Bcrypt) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: Password must be at most %d bytes long", ErrWeak, maxLength)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify compares in constant time; malformed hashes simply do not match.
func (b *Bcrypt) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

const (
	minLength        = 8
	maxLength        = 72 // bcrypt input limit, in bytes
	specialCharacter = `!@#$%^&*(),.?":{}|<>`
)

// ErrWeak is wrapped by Validate when a password breaks one or more rules.
var ErrWeak = errors.New("weak password")

// Validate checks strength rules and returns every broken rule in one error.
func Validate(password string) error {
	var problems []string
	if len(password) < minLength {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters long", minLength))
	}
	if len(password) > maxLength {
		problems = append(problems, fmt.Sprintf("Password must be at most %d bytes long", maxLength))
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialCharacter, r):
			special = true
		}
	}
	if !upper {
		problems = append(problems, "Password must contain at least one uppercase letter")
	}
	if !lower {
		problems = append(problems, "Password must contain at least one lowercase letter")
	}
	if !digit {
		problems = append(problems, "Password must contain at least one number")
	}
	if !special {
		problems = append(problems, "Password must contain at least one special character")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrWeak, strings.Join(problems, ", "))
}
