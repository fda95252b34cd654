// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/taskmaster/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session"

// DefaultRedirectPath はログイン後の既定の遷移先。
const DefaultRedirectPath = "/tasks"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var actorContextKey = contextKey("actor")

// SessionResolver はセッショントークンから利用者を解決する。
// auth.Serviceの部分集合として定義する。
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (*model.User, error)
}

// NewSessionMiddleware はリクエストの操作者を決定し、コンテキストに格納するミドルウェアを返す。
// authRequired=falseの場合はCookieを参照せず、全リクエストをSystem Userとして扱う。
// トークンが無効な場合は匿名として扱い、ここではリクエストを拒否しない。
func NewSessionMiddleware(resolver SessionResolver, authRequired bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authRequired {
				next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), model.SystemActor)))
				return
			}

			actor := model.Actor{}
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				user, err := resolver.ResolveSession(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to resolve session",
						slog.String("error", err.Error()),
					)
				} else if user != nil {
					actor = model.ActorFromUser(user)
					annotateActor(r.Context(), actor.UserID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), actor)))
		})
	}
}

// RequireAuth は未認証リクエストを拒否するミドルウェアを返す。
// /api/配下には401のJSONを返し、それ以外はログイン画面へリダイレクトする。
// authRequired=falseの場合は何もしない。
func RequireAuth(authRequired bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authRequired || ActorFromContext(r.Context()).IsAuthenticated() {
				next.ServeHTTP(w, r)
				return
			}

			if IsAPIRequest(r) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			http.Redirect(w, r, "/login?next="+url.QueryEscape(r.URL.RequestURI()), http.StatusFound)
		})
	}
}

// RedirectAuthenticated はログイン済みの利用者を一覧画面へ遷移させる。
// ログイン・登録画面に適用する。
func RedirectAuthenticated() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFromContext(r.Context()).IsAuthenticated() {
				http.Redirect(w, r, DefaultRedirectPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SafeNext はログイン後の遷移先として同一オリジンの相対パスのみを許可する。
// 許可されない値の場合はDefaultRedirectPathを返す。
func SafeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return DefaultRedirectPath
	}
	if strings.ContainsAny(next, "\\\r\n\t") {
		return DefaultRedirectPath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return DefaultRedirectPath
	}
	return next
}

// IsAPIRequest はJSON APIへのリクエストかを判定する。
func IsAPIRequest(r *http.Request) bool {
	return r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/")
}

// ActorFromContext はリクエストコンテキストから操作者を取得する。
// 未設定の場合は匿名のActorを返す。
func ActorFromContext(ctx context.Context) model.Actor {
	actor, _ := ctx.Value(actorContextKey).(model.Actor)
	return actor
}

// ContextWithActor はコンテキストに操作者を注入する。
func ContextWithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}
