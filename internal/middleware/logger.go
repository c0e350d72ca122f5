package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"shardz/internal/logger"
)

// requestUser is filled in by the auth middleware after it resolves the
// caller, so the access log (which wraps the whole chain) can name them.
type requestUser struct {
	id string
}

const requestUserKey = contextKey("request-user")

func recordRequestUser(r *http.Request, id string) {
	if u, ok := r.Context().Value(requestUserKey).(*requestUser); ok {
		u.id = id
	}
}

// statusRecorder captures what the handler wrote for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Hijack keeps the websocket upgrade working behind the access log.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggerMiddleware writes one access log line per request: method, URI,
// status, response size, duration, and the authenticated user when there is
// one.
func LoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		user := &requestUser{}
		rec := &statusRecorder{ResponseWriter: w}

		ctx := context.WithValue(r.Context(), requestUserKey, user)
		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		log := logger.New()
		evt := log.Info().
			Str("method", r.Method).
			Str("uri", r.URL.RequestURI()).
			Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start))
		if user.id != "" {
			evt = evt.Str("user_id", user.id)
		}
		evt.Msg("request")
	})
}
