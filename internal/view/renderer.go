// Package view はHTML画面のテンプレートと静的ファイルを提供する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskmaster/internal/model"
	"github.com/hitoshi/taskmaster/internal/security"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// 画面名
const (
	PageTasks    = "tasks"
	PageTaskForm = "task_form"
	PageLogin    = "login"
	PageRegister = "register"
	PageError    = "error"
)

var pageNames = []string{PageTasks, PageTaskForm, PageLogin, PageRegister, PageError}

// 表示形式
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04"
)

// Flash は次の画面表示で一度だけ表示するメッセージ。
type Flash struct {
	Kind    string // success, error, info
	Message string
}

// Page は全画面に共通のテンプレートデータ。
type Page struct {
	Title        string
	Actor        model.Actor
	AuthRequired bool
	CSRFToken    string
	Flash        *Flash
	Counts       *model.TaskCounts // nilの場合はサイドバーを表示しない
	Data         any
}

// Renderer は画面ごとにレイアウトと結合済みのテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
// 日時はlocのタイムゾーンで表示する。
func NewRenderer(loc *time.Location) (*Renderer, error) {
	if loc == nil {
		loc = time.Local
	}
	sanitizer := security.NewTextSanitizer()
	funcs := template.FuncMap{
		"multiline": sanitizer.ToHTML,
		"formatDate": func(t time.Time) string {
			return t.In(loc).Format(DateLayout)
		},
		"formatDateTime": func(t time.Time) string {
			return t.In(loc).Format(DateTimeLayout)
		},
	}

	base, err := template.New("layout").Funcs(funcs).ParseFS(templatesFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone layout: %w", err)
		}
		t, err := clone.ParseFS(templatesFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// Render は画面をバッファに描画してからstatusとともに書き込む。
// 描画途中で失敗した場合に中途半端なHTMLを返さない。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) {
	t, ok := r.pages[name]
	if !ok {
		slog.Error("unknown template", slog.String("template", name))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		slog.Error("failed to render template",
			slog.String("template", name),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// StaticHandler は埋め込み静的ファイルを配信するハンドラーを返す。
// /static/配下にマウントすることを想定している。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
