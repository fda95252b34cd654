package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/taskmaster/internal/view"
)

const (
	flashCookieName = "flash"
	flashMaxAge     = 60 // 秒
)

// 表示種別
const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

// CookieConfig はハンドラーが発行するCookieの共通設定。
type CookieConfig struct {
	Secure bool
	Domain string
}

// flashStore はリダイレクト後の画面に一度だけ表示するメッセージをCookieで受け渡す。
type flashStore struct {
	cookie CookieConfig
}

type flashPayload struct {
	Kind    string `json:"k"`
	Message string `json:"m"`
}

// set は次の画面表示用のメッセージを設定する。
func (s flashStore) set(w http.ResponseWriter, kind, message string) {
	b, err := json.Marshal(flashPayload{Kind: kind, Message: message})
	if err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(b),
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   flashMaxAge,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// pop は設定済みのメッセージを取り出し、Cookieを削除する。
// 改ざんされた値は無視する。
func (s flashStore) pop(w http.ResponseWriter, r *http.Request) *view.Flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	b, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var p flashPayload
	if err := json.Unmarshal(b, &p); err != nil || p.Message == "" {
		return nil
	}
	switch p.Kind {
	case flashSuccess, flashError, flashInfo:
	default:
		p.Kind = flashInfo
	}
	return &view.Flash{Kind: p.Kind, Message: p.Message}
}
