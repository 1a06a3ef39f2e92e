package claims

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"

	"github.com/sableauth/interactd/account"
)

var alice = &account.Account{
	ID:          "1",
	Username:    "alice",
	Email:       "alice@example.com",
	FullName:    "Alice Smith",
	PhoneNumber: "+911234567890",
	Permissions: []string{"read", "write"},
}

func TestResolve(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name      string
		scopes    []string
		wantNames []string
	}{
		{name: "no scopes", scopes: nil, wantNames: []string{"sub"}},
		{name: "openid only", scopes: []string{"openid"}, wantNames: []string{"sub"}},
		{name: "email", scopes: []string{"openid", "email"}, wantNames: []string{"email", "sub"}},
		{
			name:      "profile",
			scopes:    []string{"openid", "profile"},
			wantNames: []string{"full_name", "phone_number", "sub", "username"},
		},
		{
			name:      "permissions",
			scopes:    []string{"permissions"},
			wantNames: []string{"permissions", "sub"},
		},
		{
			name:      "everything",
			scopes:    []string{"openid", "email", "profile", "permissions"},
			wantNames: []string{"email", "full_name", "permissions", "phone_number", "sub", "username"},
		},
		{
			name:      "unknown scopes ignored",
			scopes:    []string{"openid", "offline_access", "wallet"},
			wantNames: []string{"sub"},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			set := Resolve(alice, tc.scopes)
			if want, got := "1", set.Subject; got != want {
				t.Errorf("want sub %s, got: %s", want, got)
			}

			got := set.Names()
			sort.Strings(got)
			if !reflect.DeepEqual(got, tc.wantNames) {
				t.Errorf("want claims %v, got: %v", tc.wantNames, got)
			}
		})
	}
}

func TestResolveValues(t *testing.T) {
	t.Parallel()

	set := Resolve(alice, []string{"openid", "email", "profile", "permissions"})

	want := map[string]any{
		"sub":          "1",
		"email":        "alice@example.com",
		"username":     "alice",
		"full_name":    "Alice Smith",
		"phone_number": "+911234567890",
		"permissions":  []string{"read", "write"},
	}
	if got := set.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got: %v", want, got)
	}
}

func TestSetMarshalJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(Resolve(alice, []string{"openid", "email"}))
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if want := map[string]any{"sub": "1", "email": "alice@example.com"}; !reflect.DeepEqual(got, want) {
		t.Errorf("want %v, got: %v", want, got)
	}
}

func TestResolveDoesNotAliasPermissions(t *testing.T) {
	t.Parallel()

	set := Resolve(alice, []string{"permissions"})
	set.Permissions[0] = "mutated"
	if alice.Permissions[0] != "read" {
		t.Error("resolving must not alias the account's permission slice")
	}
}
