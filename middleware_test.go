package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestBaseMiddleware(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	var sawLogger bool
	h := baseMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ctxLog(r.Context()) != nil {
			sawLogger = true
		}
		w.WriteHeader(http.StatusTeapot)
	}), log)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interaction/x", nil))

	if !sawLogger {
		t.Error("handler should see a request-scoped logger")
	}
	if want, got := http.StatusTeapot, rec.Code; got != want {
		t.Errorf("want status %d, got: %d", want, got)
	}
}

func TestSessionKeys(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)

	hash, block, err := sessionKeys(log, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 64 || len(block) != 32 {
		t.Errorf("generated keys should be 64/32 bytes, got %d/%d", len(hash), len(block))
	}

	if _, _, err := sessionKeys(log, "short", ""); err == nil {
		t.Error("want error for bad hash key length")
	}
	if _, _, err := sessionKeys(log, string(make([]byte, 32)), "short"); err == nil {
		t.Error("want error for bad block key length")
	}
}
