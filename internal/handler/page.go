package handler

import (
	"net/http"

	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/view"
)

// PageRenderer はHTML画面の描画を行う。view.Rendererが実装する。
type PageRenderer interface {
	Render(w http.ResponseWriter, status int, name string, page view.Page)
}

var _ PageRenderer = (*view.Renderer)(nil)

// pages はHTMLハンドラーに共通の画面生成処理をまとめる。
type pages struct {
	renderer     PageRenderer
	flash        flashStore
	authRequired bool
}

// page はリクエストの操作者・CSRFトークン・フラッシュメッセージを設定したPageを返す。
func (p pages) page(w http.ResponseWriter, r *http.Request, title string) view.Page {
	return view.Page{
		Title:        title,
		Actor:        middleware.ActorFromContext(r.Context()),
		AuthRequired: p.authRequired,
		CSRFToken:    middleware.CSRFToken(r.Context()),
		Flash:        p.flash.pop(w, r),
	}
}

// redirectWithFlash はメッセージを設定してlocationへ303で遷移させる。
func (p pages) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	p.flash.set(w, kind, message)
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// renderError はエラー画面を描画する。
func (p pages) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	page := p.page(w, r, http.StatusText(status))
	page.Data = message
	p.renderer.Render(w, status, view.PageError, page)
}
