package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"explicit origin", []string{"https://app.example.com/"}, "https://app.example.com", http.MethodPost, "https://app.example.com", "true", http.StatusTeapot},
		{"wildcard", []string{"*"}, "https://other.example.com", http.MethodGet, "https://other.example.com", "", http.StatusTeapot},
		{"rejected origin", []string{"https://app.example.com"}, "https://evil.example.com", http.MethodGet, "", "", http.StatusTeapot},
		{"no origin", []string{"*"}, "", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", []string{"*"}, "https://app.example.com", http.MethodOptions, "https://app.example.com", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/chat", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}
