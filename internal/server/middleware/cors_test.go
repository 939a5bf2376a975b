package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsGet(t *testing.T, allowed []string, origin string) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(allowed)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/pools", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCORSReflectsAllowedOrigin(t *testing.T) {
	rec := corsGet(t, []string{"https://radar.example.org"}, "https://radar.example.org")
	assert.Equal(t, "https://radar.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSSkipsUnknownOrigin(t *testing.T) {
	rec := corsGet(t, []string{"https://radar.example.org"}, "https://evil.example.org")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSEmptyListAllowsAll(t *testing.T) {
	rec := corsGet(t, nil, "https://anywhere.example.org")
	assert.Equal(t, "https://anywhere.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSNoOriginHeader(t *testing.T) {
	rec := corsGet(t, nil, "")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
