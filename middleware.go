package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type loggerCtxKey struct{}
type requestIDCtxKey struct{}

// ctxLog returns the request-scoped logger, or a fresh one when none was
// attached.
func ctxLog(ctx context.Context) logrus.FieldLogger {
	l, ok := ctx.Value(loggerCtxKey{}).(logrus.FieldLogger)
	if ok {
		return l
	}
	return logrus.New()
}

func contextWithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, l)
}

// baseMiddleware should wrap all requests to the service. It attaches a
// request ID and a request-scoped logger, and logs the request outcome.
func baseMiddleware(wrapped http.Handler, logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		st := time.Now()

		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx = context.WithValue(ctx, requestIDCtxKey{}, rid)

		l := logger.WithField("request_id", rid)
		ctx = contextWithLogger(ctx, l)

		ww := &statusWriter{ResponseWriter: w}

		wrapped.ServeHTTP(ww, r.WithContext(ctx))

		if ww.st == 0 {
			ww.st = http.StatusOK
		}

		l.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.st,
			"duration": time.Since(st),
		}).Info()
	})
}

type statusWriter struct {
	http.ResponseWriter
	st int
}

func (w *statusWriter) WriteHeader(code int) {
	w.st = code
	w.ResponseWriter.WriteHeader(code)
}

// httpErrHandler renders failures without leaking internal detail.
type httpErrHandler struct{}

func (h *httpErrHandler) Error(w http.ResponseWriter, r *http.Request, err error) {
	ctxLog(r.Context()).WithError(err).Error("request failed")
	http.Error(w, "Internal Error", http.StatusInternalServerError)
}

func (h *httpErrHandler) BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	http.Error(w, message, http.StatusBadRequest)
}

func (h *httpErrHandler) Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	http.Error(w, message, http.StatusUnauthorized)
}
