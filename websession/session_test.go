package websession

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var (
	testHashKey  = []byte("0123456789abcdef0123456789abcdef")
	testBlockKey = []byte("fedcba9876543210fedcba9876543210")
)

// roundTrip sets the marker on a response, then builds a new request
// carrying the resulting cookies, like a browser would.
func roundTrip(t *testing.T, m *Manager, mk *Marker) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/interaction/x/login", nil)
	if err := m.SetMarker(rec, req, mk); err != nil {
		t.Fatal(err)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Fatal("no session cookie set")
	}

	next := httptest.NewRequest(http.MethodGet, "/interaction/y", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	return next
}

func TestMarkerRoundTrip(t *testing.T) {
	t.Parallel()

	m := NewManager(testHashKey, testBlockKey, time.Hour)
	req := roundTrip(t, m, &Marker{AccountID: "1"})

	id, ok := m.CheckReuse(req)
	if !ok {
		t.Fatal("want marker reuse, got none")
	}
	if want := "1"; id != want {
		t.Errorf("want account %s, got: %s", want, id)
	}
}

func TestMarkerExpired(t *testing.T) {
	t.Parallel()

	m := NewManager(testHashKey, testBlockKey, time.Hour)
	req := roundTrip(t, m, &Marker{AccountID: "1", IssuedAt: time.Now().Add(-2 * time.Hour)})

	if _, ok := m.CheckReuse(req); ok {
		t.Error("expired marker must not allow reuse")
	}
}

func TestMarkerAbsent(t *testing.T) {
	t.Parallel()

	m := NewManager(testHashKey, testBlockKey, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/interaction/y", nil)
	if _, ok := m.CheckReuse(req); ok {
		t.Error("no cookie should mean no reuse")
	}
}

func TestMarkerWrongKeys(t *testing.T) {
	t.Parallel()

	m := NewManager(testHashKey, testBlockKey, time.Hour)
	req := roundTrip(t, m, &Marker{AccountID: "1"})

	other := NewManager([]byte("xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"), testBlockKey, time.Hour)
	if _, ok := other.CheckReuse(req); ok {
		t.Error("a cookie signed with different keys must not validate")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()

	m := NewManager(testHashKey, testBlockKey, time.Hour)
	req := roundTrip(t, m, &Marker{AccountID: "1"})

	rec := httptest.NewRecorder()
	if err := m.Clear(rec, req); err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			found = true
		}
	}
	if !found {
		t.Error("clear should expire the session cookie")
	}
}
