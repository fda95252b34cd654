package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/taskmaster/internal/model"
)

// --- モック定義 ---

type mockSessionResolver struct {
	resolveSessionFn func(ctx context.Context, token string) (*model.User, error)
}

func (m *mockSessionResolver) ResolveSession(ctx context.Context, token string) (*model.User, error) {
	if m.resolveSessionFn != nil {
		return m.resolveSessionFn(ctx, token)
	}
	return nil, nil
}

func resolverFor(token string, user *model.User) *mockSessionResolver {
	return &mockSessionResolver{
		resolveSessionFn: func(ctx context.Context, got string) (*model.User, error) {
			if got == token {
				return user, nil
			}
			return nil, nil
		},
	}
}

// captureActor はハンドラーに届いた操作者を記録する。
func captureActor(dst *model.Actor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*dst = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

// --- NewSessionMiddleware ---

func TestSessionMiddleware_ValidToken_InjectsActor(t *testing.T) {
	mw := NewSessionMiddleware(resolverFor("good", &model.User{ID: 7, Username: "alice"}), true)

	var actor model.Actor
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "good"})
	w := httptest.NewRecorder()

	mw(captureActor(&actor)).ServeHTTP(w, req)

	if !actor.IsAuthenticated() || *actor.UserID != 7 || actor.Name != "alice" {
		t.Errorf("actor = %+v, want alice(7)", actor)
	}
}

func TestSessionMiddleware_AnonymousCases(t *testing.T) {
	tests := []struct {
		name     string
		cookie   *http.Cookie
		resolver *mockSessionResolver
	}{
		{"Cookieなし", nil, &mockSessionResolver{}},
		{"空のCookie", &http.Cookie{Name: SessionCookieName, Value: ""}, &mockSessionResolver{}},
		{"無効なトークン", &http.Cookie{Name: SessionCookieName, Value: "bad"}, resolverFor("good", &model.User{ID: 1})},
		{"解決エラー", &http.Cookie{Name: SessionCookieName, Value: "good"}, &mockSessionResolver{
			resolveSessionFn: func(ctx context.Context, token string) (*model.User, error) {
				return nil, errors.New("db down")
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var actor model.Actor
			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()

			NewSessionMiddleware(tt.resolver, true)(captureActor(&actor)).ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200 (gate does not reject)", w.Code)
			}
			if actor.IsAuthenticated() {
				t.Errorf("actor = %+v, want anonymous", actor)
			}
		})
	}
}

func TestSessionMiddleware_AuthDisabled_UsesSystemActor(t *testing.T) {
	resolver := &mockSessionResolver{
		resolveSessionFn: func(ctx context.Context, token string) (*model.User, error) {
			t.Fatal("resolver should not be called when auth is disabled")
			return nil, nil
		},
	}

	var actor model.Actor
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "anything"})
	w := httptest.NewRecorder()

	NewSessionMiddleware(resolver, false)(captureActor(&actor)).ServeHTTP(w, req)

	if actor.Name != model.SystemUserName || actor.UserID != nil {
		t.Errorf("actor = %+v, want System User", actor)
	}
}

// --- RequireAuth ---

func TestRequireAuth_AnonymousHTML_RedirectsToLoginWithNext(t *testing.T) {
	handler := RequireAuth(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/tasks?filter=today&search=a%20b", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", w.Code)
	}
	want := "/login?next=%2Ftasks%3Ffilter%3Dtoday%26search%3Da%2520b"
	if loc := w.Header().Get("Location"); loc != want {
		t.Errorf("Location = %q, want %q", loc, want)
	}
}

func TestRequireAuth_AnonymousAPI_Returns401JSON(t *testing.T) {
	handler := RequireAuth(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/1/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Success || body.Message != "Authentication required" {
		t.Errorf("body = %+v", body)
	}
}

func TestRequireAuth_Passes(t *testing.T) {
	id := int64(3)
	tests := []struct {
		name         string
		authRequired bool
		actor        model.Actor
	}{
		{"ログイン済み", true, model.Actor{UserID: &id, Name: "carol"}},
		{"認証無効", false, model.SystemActor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := RequireAuth(tt.authRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			req = req.WithContext(ContextWithActor(req.Context(), tt.actor))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if !called {
				t.Error("handler should be called")
			}
		})
	}
}

func TestRedirectAuthenticated(t *testing.T) {
	id := int64(1)
	handler := RedirectAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req = req.WithContext(ContextWithActor(req.Context(), model.Actor{UserID: &id, Name: "a"}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/tasks" {
		t.Errorf("logged in: status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	if w.Code != http.StatusOK {
		t.Errorf("anonymous: status = %d, want 200", w.Code)
	}
}

// --- SafeNext ---

func TestSafeNext(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/tasks", "/tasks"},
		{"/tasks/3/edit?x=1", "/tasks/3/edit?x=1"},
		{"", "/tasks"},
		{"tasks", "/tasks"},
		{"//evil.example.com", "/tasks"},
		{"https://evil.example.com/", "/tasks"},
		{"/\\evil.example.com", "/tasks"},
		{"\\\\evil.example.com", "/tasks"},
		{"javascript:alert(1)", "/tasks"},
		{"/tasks\r\nSet-Cookie: x=y", "/tasks"},
	}

	for _, tt := range tests {
		if got := SafeNext(tt.in); got != tt.want {
			t.Errorf("SafeNext(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestActorFromContext_Missing_ReturnsAnonymous(t *testing.T) {
	actor := ActorFromContext(context.Background())
	if actor.IsAuthenticated() || actor.Name != "" {
		t.Errorf("actor = %+v, want zero value", actor)
	}
}
