package account

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v2"
)

// dummyHash is compared against when the username is unknown, so lookups for
// missing users burn roughly the same time as a wrong password.
var dummyHash = mustHash("-")

func mustHash(pw string) []byte {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}

// StaticStore is a Store over a fixed set of accounts.
type StaticStore struct {
	byID       map[string]*Account
	byUsername map[string]*Account
}

// NewStaticStore builds a store from the given accounts. Accounts carrying a
// plaintext Password have it hashed and cleared. IDs and usernames must be
// unique and non-empty.
func NewStaticStore(accounts ...*Account) (*StaticStore, error) {
	s := &StaticStore{
		byID:       make(map[string]*Account, len(accounts)),
		byUsername: make(map[string]*Account, len(accounts)),
	}
	for _, a := range accounts {
		if a.ID == "" || a.Username == "" {
			return nil, fmt.Errorf("account %q/%q: id and username are required", a.ID, a.Username)
		}
		if _, ok := s.byID[a.ID]; ok {
			return nil, fmt.Errorf("duplicate account id %s", a.ID)
		}
		if _, ok := s.byUsername[a.Username]; ok {
			return nil, fmt.Errorf("duplicate username %s", a.Username)
		}
		if a.Password != "" {
			h, err := bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hashing password for %s: %w", a.Username, err)
			}
			a.PasswordHash = h
			a.Password = ""
		}
		if len(a.PasswordHash) == 0 {
			return nil, fmt.Errorf("account %s has no password", a.Username)
		}
		s.byID[a.ID] = a
		s.byUsername[a.Username] = a
	}
	return s, nil
}

// LoadStaticStore reads a YAML account list from r and builds a store from
// it, hashing any plaintext passwords on the way in.
func LoadStaticStore(r io.Reader) (*StaticStore, error) {
	var accounts []*Account
	if err := yaml.NewDecoder(r).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("decoding accounts: %w", err)
	}
	return NewStaticStore(accounts...)
}

func (s *StaticStore) Lookup(_ context.Context, id string) (*Account, bool, error) {
	a, ok := s.byID[id]
	return a, ok, nil
}

func (s *StaticStore) Verify(_ context.Context, username, password string) (*Account, error) {
	a, ok := s.byUsername[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// DefaultAccounts is the development account set, matching the fixture users
// the service has always shipped with.
func DefaultAccounts() []*Account {
	return []*Account{
		{
			ID:          "1",
			Username:    "alice",
			Password:    "password123",
			Email:       "alice@example.com",
			FullName:    "Alice Smith",
			PhoneNumber: "+911234567890",
			Permissions: []string{"read", "write"},
		},
		{
			ID:          "2",
			Username:    "bob",
			Password:    "mypassword",
			Email:       "bob@example.com",
			FullName:    "Bob Johnson",
			PhoneNumber: "+919876543210",
			Permissions: []string{"read"},
		},
	}
}
