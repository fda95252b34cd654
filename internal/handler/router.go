package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/taskmaster/internal/metrics"
	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	SessionResolver   middleware.SessionResolver
	AuthRequired      bool
	HSTS              bool
	TrustProxy        bool // trueの場合はRealIPでRemoteAddrを書き換える
	CORSAllowedOrigin string
	Cookie            CookieConfig
	RateLimiter       *middleware.RateLimiter

	// 画面
	Renderer      PageRenderer
	StaticHandler http.Handler

	// サービス
	AuthService AuthServiceInterface
	TaskService TaskServiceInterface

	// 運用
	DB             Pinger
	MetricsHandler http.Handler // nilの場合は/metricsを公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → (RealIP) → RequestID → Logging → Metrics → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 認証が必要なルートにはさらにRequireAuthを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookie.Secure,
		CookieDomain: deps.Cookie.Domain,
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewHTTPMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver, deps.AuthRequired))
	r.Use(middleware.NewCSRFMiddleware(csrfConfig))
	r.Use(deps.RateLimiter.GeneralMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.Renderer, collector, deps.Cookie)
	taskHandler := NewTaskHandler(deps.TaskService, deps.Renderer, deps.Cookie, deps.AuthRequired)
	apiHandler := NewTaskAPIHandler(deps.TaskService)
	healthHandler := NewHealthHandler(deps.DB)
	notFound := pages{
		renderer:     deps.Renderer,
		flash:        flashStore{cookie: deps.Cookie},
		authRequired: deps.AuthRequired,
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if middleware.IsAPIRequest(r) {
			middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
				Code:     "NOT_FOUND",
				Message:  "Resource not found",
				Category: "system",
				Action:   "URLを確認してください。",
			})
			return
		}
		notFound.renderError(w, r, http.StatusNotFound, "The requested page was not found.")
	})

	// --- 認証不要のルート ---
	if deps.StaticHandler != nil {
		r.Handle("/static/*", deps.StaticHandler)
	}
	r.Get("/health", healthHandler.Check)
	r.Get("/api/health", healthHandler.Check)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Get("/logout", authHandler.Logout)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RedirectAuthenticated())

		r.Get("/login", authHandler.LoginForm)
		r.Get("/register", authHandler.RegisterForm)

		// ログイン・登録送信はIP単位のレート制限を追加
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
		r.With(deps.RateLimiter.LoginMiddleware()).Post("/register", authHandler.Register)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.AuthRequired))

		r.Get("/", taskHandler.Index)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.List)
			r.Get("/new", taskHandler.NewForm)
			r.Post("/new", taskHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/edit", taskHandler.EditForm)
				r.Post("/edit", taskHandler.Update)
				r.Post("/delete", taskHandler.Delete)
			})
		})

		r.Route("/api/tasks", func(r chi.Router) {
			r.Get("/", apiHandler.List)
			r.Post("/", apiHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", apiHandler.Get)
				r.Patch("/", apiHandler.Update)
				r.Delete("/", apiHandler.Delete)
				r.Post("/status", apiHandler.UpdateStatus)
			})
		})
	})

	return r
}

