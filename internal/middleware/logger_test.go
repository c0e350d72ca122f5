package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLoggerMiddlewarePassesResponseThrough(t *testing.T) {
	handler := LoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/databases", nil))

	if rec.Code != http.StatusTeapot {
		t.Fatalf("status %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Body.String() != "short and stout" {
		t.Fatalf("body %q passed through wrong", rec.Body.String())
	}
}

func TestLoggerMiddlewareSeesAuthenticatedUser(t *testing.T) {
	var seen string
	handler := LoggerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The auth middleware runs inside the access-log wrapper and reports
		// the caller it resolved.
		recordRequestUser(r, "u1")
		if u, ok := r.Context().Value(requestUserKey).(*requestUser); ok {
			seen = u.id
		}
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/me", nil))

	if seen != "u1" {
		t.Fatalf("recorded user %q, want u1", seen)
	}
}

func TestRecordRequestUserWithoutHolderIsNoOp(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	recordRequestUser(r, "u1")
}
