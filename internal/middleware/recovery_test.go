package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestRecoveryMiddleware_Panic はpanicが統一フォーマットの500になることを検証する。
func TestRecoveryMiddleware_Panic(t *testing.T) {
	var buf bytes.Buffer
	handler := NewRecoveryMiddleware(newJSONLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
	if strings.Contains(w.Body.String(), "boom") {
		t.Error("panic value should not leak into the response")
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("log should contain panic message, got %s", buf.String())
	}
}

// TestRecoveryMiddleware_NoPanic は通常時に何もしないことを検証する。
func TestRecoveryMiddleware_NoPanic(t *testing.T) {
	handler := NewRecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

// TestRecoveryMiddleware_AbortHandler はErrAbortHandlerを再送出することを検証する。
func TestRecoveryMiddleware_AbortHandler(t *testing.T) {
	handler := NewRecoveryMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered = %v, want http.ErrAbortHandler", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
