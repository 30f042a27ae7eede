package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// echoUser is the handler behind the middleware in these tests. It writes
// the user ID it finds in the context, or "anonymous".
var echoUser = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := UserIDFromContext(r.Context())
	if !ok {
		id = "anonymous"
	}
	w.Write([]byte(id))
})

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	valid, _ := ts.Generate("user-1")
	expired, _ := ts.GenerateWithDuration("user-1", -time.Second)

	tests := []struct {
		name     string
		setup    func(r *http.Request)
		wantCode int
		wantBody string
	}{
		{
			name:     "bearer header",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+valid) },
			wantCode: http.StatusOK,
			wantBody: "user-1",
		},
		{
			name:     "lowercase scheme",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "bearer "+valid) },
			wantCode: http.StatusOK,
			wantBody: "user-1",
		},
		{
			name:     "cookie",
			setup:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: valid}) },
			wantCode: http.StatusOK,
			wantBody: "user-1",
		},
		{
			name:     "no token",
			setup:    func(*http.Request) {},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "expired token",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+expired) },
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "basic scheme",
			setup:    func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
			wantCode: http.StatusUnauthorized,
		},
		{
			// A bad header is not rescued by a good cookie.
			name: "bad header with good cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer garbage")
				r.AddCookie(&http.Cookie{Name: CookieName, Value: valid})
			},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/garden", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()

			RequireAuth(ts)(echoUser).ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rr.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
			if rr.Code == http.StatusUnauthorized && rr.Header().Get("Content-Type") != "application/json" {
				t.Errorf("401 Content-Type = %q, want application/json", rr.Header().Get("Content-Type"))
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	valid, _ := ts.Generate("user-2")

	t.Run("anonymous passes through", func(t *testing.T) {
		rr := httptest.NewRecorder()
		OptionalAuth(ts)(echoUser).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/plants", nil))
		if rr.Code != http.StatusOK || rr.Body.String() != "anonymous" {
			t.Errorf("got %d %q, want 200 anonymous", rr.Code, rr.Body.String())
		}
	})

	t.Run("invalid token is ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/plants", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rr := httptest.NewRecorder()
		OptionalAuth(ts)(echoUser).ServeHTTP(rr, req)
		if rr.Body.String() != "anonymous" {
			t.Errorf("body = %q, want anonymous", rr.Body.String())
		}
	})

	t.Run("valid token sets user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/plants", nil)
		req.Header.Set("Authorization", "Bearer "+valid)
		rr := httptest.NewRecorder()
		OptionalAuth(ts)(echoUser).ServeHTTP(rr, req)
		if rr.Body.String() != "user-2" {
			t.Errorf("body = %q, want user-2", rr.Body.String())
		}
	})
}
