package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORS_EchoesAllowedOrigin(t *testing.T) {
	handler, _, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify?token=a&owner_id=b", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORS_UnknownOriginGetsFirstConfigured(t *testing.T) {
	handler, _, _ := testHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/verify?token=a&owner_id=b", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Never echo an untrusted origin; the browser on evil.example
	// cannot read the response.
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightBypassesEngine(t *testing.T) {
	handler, _, _ := testHandler(t)

	// No token, no owner: a preflight must still succeed because the
	// engine never runs for OPTIONS.
	req := httptest.NewRequest(http.MethodOptions, "/v1/verify", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Empty(t, w.Body.String())
}
