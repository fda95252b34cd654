// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskmaster/internal/auth"
	"github.com/hitoshi/taskmaster/internal/metrics"
	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/view"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.Session, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler はログイン・登録・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics metrics.MetricsCollector
	cookie  CookieConfig
	pages   pages
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, renderer PageRenderer, collector metrics.MetricsCollector, cookie CookieConfig) *AuthHandler {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &AuthHandler{
		service: service,
		metrics: collector,
		cookie:  cookie,
		pages: pages{
			renderer:     renderer,
			flash:        flashStore{cookie: cookie},
			authRequired: true,
		},
	}
}

// LoginForm はログイン画面を表示する。
// GET /login?next=/tasks
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	page := h.pages.page(w, r, "Login")
	page.Data = view.AuthFormData{Next: r.URL.Query().Get("next")}
	h.pages.renderer.Render(w, http.StatusOK, view.PageLogin, page)
}

// Login は資格情報を照合し、セッションCookieを発行してnextへ遷移させる。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	in := auth.LoginInput{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Remember: isChecked(r.PostFormValue("remember")),
	}
	next := r.PostFormValue("next")
	if next == "" {
		next = r.URL.Query().Get("next")
	}

	session, err := h.service.Login(r.Context(), in)
	if err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("login failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			)
			h.pages.renderError(w, r, http.StatusInternalServerError, "An internal error occurred")
			return
		}

		h.metrics.RecordLoginAttempt(metrics.LoginFailed)
		page := h.pages.page(w, r, "Login")
		data := view.AuthFormData{Username: in.Username, Next: next, Remember: in.Remember}
		status := http.StatusBadRequest
		if apiErr.Code == model.ErrCodeInvalidCredentials {
			status = http.StatusUnauthorized
			page.Flash = &view.Flash{Kind: flashError, Message: apiErr.Message}
		} else {
			data.Errors = apiErr.Fields
		}
		page.Data = data
		h.pages.renderer.Render(w, status, view.PageLogin, page)
		return
	}

	h.metrics.RecordLoginAttempt(metrics.LoginSucceeded)
	h.setSessionCookie(w, session.Token, session.MaxAge)
	http.Redirect(w, r, middleware.SafeNext(next), http.StatusSeeOther)
}

// RegisterForm は利用者登録画面を表示する。
// GET /register
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	page := h.pages.page(w, r, "Register")
	page.Data = view.AuthFormData{}
	h.pages.renderer.Render(w, http.StatusOK, view.PageRegister, page)
}

// Register は利用者を登録し、ログイン画面へ遷移させる。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in := auth.RegisterInput{
		Username:        r.PostFormValue("username"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}

	if _, err := h.service.Register(r.Context(), in); err != nil {
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) {
			slog.Error("registration failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			)
			h.pages.renderError(w, r, http.StatusInternalServerError, "An internal error occurred")
			return
		}

		page := h.pages.page(w, r, "Register")
		data := view.AuthFormData{Username: in.Username, Errors: apiErr.Fields}
		status := http.StatusBadRequest
		if apiErr.Code == model.ErrCodeDuplicateUsername {
			status = http.StatusConflict
			data.Errors = map[string]string{"username": apiErr.Message}
		}
		page.Data = data
		h.pages.renderer.Render(w, status, view.PageRegister, page)
		return
	}

	h.pages.redirectWithFlash(w, r, "/login", flashSuccess, "Registration successful! You can now log in.")
}

// Logout はサーバー側のセッションとセッションCookieを削除し、ログイン画面へ遷移させる。
// セッション削除に失敗してもCookieは削除する。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.service.Logout(r.Context(), c.Value); err != nil {
			slog.Error("logout failed",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			)
		}
	}
	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// setSessionCookie はセッションCookieを設定する。
// maxAge=0の場合はブラウザ終了時に破棄されるCookieとなり、負の場合は削除する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// isChecked はチェックボックスの送信値を真偽値に変換する。
func isChecked(v string) bool {
	switch v {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
