// Package claims maps requested scopes to the claims an account authorizes.
package claims

import (
	"encoding/json"

	"github.com/sableauth/interactd/account"
)

// Scope names with a claim mapping. Anything else is ignored.
const (
	ScopeOpenID      = "openid"
	ScopeEmail       = "email"
	ScopeProfile     = "profile"
	ScopePermissions = "permissions"
)

// Set is the resolved claims for a subject. Presence of each claim group is
// tracked explicitly rather than inferred from zero values, so "email scope
// granted, email attribute empty" is distinguishable from "email scope not
// requested".
type Set struct {
	// Subject is always set.
	Subject string

	Email    string
	HasEmail bool

	Username    string
	FullName    string
	PhoneNumber string
	HasProfile  bool

	Permissions    []string
	HasPermissions bool
}

// Resolve computes the claims the given scopes authorize for the account.
// The subject claim is always included. Scopes without a mapping are
// ignored.
func Resolve(a *account.Account, scopes []string) Set {
	s := Set{Subject: a.ID}
	for _, sc := range scopes {
		switch sc {
		case ScopeEmail:
			s.Email = a.Email
			s.HasEmail = true
		case ScopeProfile:
			s.Username = a.Username
			s.FullName = a.FullName
			s.PhoneNumber = a.PhoneNumber
			s.HasProfile = true
		case ScopePermissions:
			s.Permissions = append([]string(nil), a.Permissions...)
			s.HasPermissions = true
		}
	}
	return s
}

// Map returns the claim name to value mapping, containing only claims that
// are present.
func (s Set) Map() map[string]any {
	m := map[string]any{"sub": s.Subject}
	if s.HasEmail {
		m["email"] = s.Email
	}
	if s.HasProfile {
		m["username"] = s.Username
		m["full_name"] = s.FullName
		m["phone_number"] = s.PhoneNumber
	}
	if s.HasPermissions {
		m["permissions"] = s.Permissions
	}
	return m
}

// Names returns the names of the claims present in the set.
func (s Set) Names() []string {
	names := []string{"sub"}
	if s.HasEmail {
		names = append(names, "email")
	}
	if s.HasProfile {
		names = append(names, "username", "full_name", "phone_number")
	}
	if s.HasPermissions {
		names = append(names, "permissions")
	}
	return names
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}
