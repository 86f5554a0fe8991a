package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := IdentityFromContext(r.Context()); id != nil {
			_, _ = w.Write([]byte(id.SubjectID))
			return
		}
		_, _ = w.Write([]byte("anonymous"))
	})
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate(testIdentity("42"))

	tests := []struct {
		name   string
		build  func(r *http.Request)
		target string
		want   string
	}{
		{name: "no token", target: "/ws", want: "anonymous"},
		{name: "cookie", target: "/ws", build: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, want: "42"},
		{name: "query", target: "/ws?token=" + token, want: "42"},
		{name: "bad cookie", target: "/ws", build: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: "junk"}) }, want: "anonymous"},
	}

	h := OptionalAuth(ts)(identityEcho())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.build != nil {
				tt.build(r)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if got := w.Body.String(); got != tt.want {
				t.Errorf("identity = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	h := RequireAuth(ts)(identityEcho())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", w.Code)
	}

	token, _ := ts.Generate(testIdentity("7"))
	r := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusOK || w.Body.String() != "7" {
		t.Errorf("got %d %q, want 200 \"7\"", w.Code, w.Body.String())
	}
}
