// Package account holds the fixed account table the interaction layer
// authenticates against, and the credential verification that goes with it.
package account

import (
	"context"
	"errors"
)

var (
	// ErrInvalidCredentials indicates a username/password pair that matches
	// no account. Handlers recover from this locally, it never reaches the
	// engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account is a subject we can authenticate. It is immutable once loaded.
type Account struct {
	// ID is the opaque, stable identifier the engine knows this subject by.
	ID          string   `yaml:"id"`
	Username    string   `yaml:"username"`
	Email       string   `yaml:"email"`
	FullName    string   `yaml:"full_name"`
	PhoneNumber string   `yaml:"phone_number"`
	Permissions []string `yaml:"permissions"`

	// PasswordHash is the bcrypt hash of the account's password. It is used
	// for verification only and must never be emitted as a claim.
	PasswordHash []byte `yaml:"-"`

	// Password may be set when loading accounts from a file, and is hashed
	// and discarded at load time.
	Password string `yaml:"password,omitempty"`
}

// Store resolves identifiers and credentials to accounts. Implementations
// must be safe for concurrent reads.
type Store interface {
	// Lookup returns the account for the given ID, with ok false when no
	// account exists.
	Lookup(ctx context.Context, id string) (*Account, bool, error)
	// Verify checks a username/password pair, returning the matched account
	// or ErrInvalidCredentials.
	Verify(ctx context.Context, username, password string) (*Account, error)
}
