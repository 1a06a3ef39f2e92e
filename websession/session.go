// Package websession tracks the sticky login session for a user agent. The
// session carries an opaque marker proving a prior successful login; its
// presence and validity is what authorizes skipping the login prompt, never
// its content.
package websession

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "interactd"
	markerKey   = "marker"
)

// Marker proves a previously completed login for this user agent.
type Marker struct {
	AccountID string    `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`

	// Sync metadata, recorded when the marker came in through the session
	// sync endpoint. Informational only.
	LocationCode     string `json:"location_code,omitempty"`
	InstalledAppGUID string `json:"installed_app_guid,omitempty"`
}

// Manager reads and writes login markers in a signed, encrypted cookie.
type Manager struct {
	store    sessions.Store
	validity time.Duration
}

// NewManager builds a manager over a cookie store with the given keys.
// hashKey must be 32 or 64 bytes; blockKey, if set, enables encryption and
// must be 16, 24 or 32 bytes. validity bounds how long a marker allows
// login reuse.
func NewManager(hashKey, blockKey []byte, validity time.Duration) *Manager {
	st := sessions.NewCookieStore(hashKey, blockKey)
	st.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(validity / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: st, validity: validity}
}

// Marker returns the current valid marker for the request, if any. Expired
// or undecodable markers are treated as absent.
func (m *Manager) Marker(r *http.Request) (*Marker, bool) {
	sess, err := m.store.Get(r, sessionName)
	if err != nil {
		// a tampered or stale cookie is just not a session
		return nil, false
	}
	raw, ok := sess.Values[markerKey].([]byte)
	if !ok {
		return nil, false
	}
	var mk Marker
	if err := json.Unmarshal(raw, &mk); err != nil {
		return nil, false
	}
	if mk.AccountID == "" || time.Since(mk.IssuedAt) > m.validity {
		return nil, false
	}
	return &mk, true
}

// CheckReuse is the session reuse gate: it returns the account bound to a
// valid marker. It must only be consulted for login prompts.
func (m *Manager) CheckReuse(r *http.Request) (accountID string, ok bool) {
	mk, ok := m.Marker(r)
	if !ok {
		return "", false
	}
	return mk.AccountID, true
}

// SetMarker writes the marker into the request's session cookie.
func (m *Manager) SetMarker(w http.ResponseWriter, r *http.Request, mk *Marker) error {
	if mk.IssuedAt.IsZero() {
		mk.IssuedAt = time.Now()
	}
	raw, err := json.Marshal(mk)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	sess, _ := m.store.Get(r, sessionName)
	sess.Values[markerKey] = raw
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Clear drops the session for this user agent.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, sessionName)
	sess.Options.MaxAge = -1
	delete(sess.Values, markerKey)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}
