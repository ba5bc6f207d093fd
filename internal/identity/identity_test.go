package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareIssuesAndReusesClientID(t *testing.T) {
	t.Parallel()

	var seen []string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = append(seen, ClientIDFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ClientCookieName, cookies[0].Name)
	assert.Regexp(t, `^anon_[a-f0-9]{32}$`, cookies[0].Value)
	assert.False(t, cookies[0].Secure)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
}

func TestMiddlewareReplacesForgedCookie(t *testing.T) {
	t.Parallel()

	var got string
	h := Middleware(false)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: "admin"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEqual(t, "admin", got)
	assert.True(t, rec.Result().Cookies()[0].Secure)
}

func TestMiddlewareThreadID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		target string
		want   string
	}{
		{"header", "thread-1", "/", "thread-1"},
		{"query", "", "/?thread_id=abc", "abc"},
		{"legacy session query", "", "/debug/state?session_id=s:1", "s:1"},
		{"invalid", "bad thread!", "/", ""},
		{"none", "", "/", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				got = ThreadIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(ThreadHeaderName, tt.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIPFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))
	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", IPFromRequest(req))
}
