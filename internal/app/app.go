// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/taskmaster/internal/auth"
	"github.com/hitoshi/taskmaster/internal/bootstrap"
	"github.com/hitoshi/taskmaster/internal/config"
	"github.com/hitoshi/taskmaster/internal/database"
	"github.com/hitoshi/taskmaster/internal/handler"
	"github.com/hitoshi/taskmaster/internal/logger"
	"github.com/hitoshi/taskmaster/internal/metrics"
	"github.com/hitoshi/taskmaster/internal/middleware"
	"github.com/hitoshi/taskmaster/internal/repository"
	"github.com/hitoshi/taskmaster/internal/task"
	"github.com/hitoshi/taskmaster/internal/view"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Bool("auth_required", cfg.AuthRequired),
		slog.String("timezone", cfg.Location.String()),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandReset:
		return runReset(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はHTTPサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. スキーマの初期化
	if cfg.AutoMigrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}

	// 2. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 3. ルーターの構築
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router, cleanup, err := NewHandler(cfg, db, registry)
	if err != nil {
		return err
	}
	defer cleanup()

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// NewHandler は設定とDB接続から全依存関係をワイヤリングしたHTTPハンドラーを返す。
// 戻り値の関数はレート制限のバックグラウンド処理を停止する。
func NewHandler(cfg *config.Config, db *sql.DB, registry *prometheus.Registry) (http.Handler, func(), error) {
	// 1. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 2. メトリクス
	collector := metrics.NewCollector(registry)

	// 3. ドメインサービスの初期化
	tokens := auth.NewSessionTokens(auth.SessionTokensConfig{
		Secret:         cfg.SecretKey,
		SessionMaxAge:  cfg.SessionTTL(),
		RememberMaxAge: cfg.RememberTTL(),
	})
	authService := auth.NewService(userRepo, sessionRepo, auth.NewPasswordHasher(0), tokens)
	taskService := task.NewService(taskRepo, task.ServiceConfig{
		Location: cfg.Location,
		Metrics:  collector,
	})

	// 4. 画面
	renderer, err := view.NewRenderer(cfg.Location)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 5. ルーターの構築
	// configのレート制限はreq/min単位
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           collector,
		SessionResolver:   authService,
		AuthRequired:      cfg.AuthRequired,
		HSTS:              cfg.CookieSecure,
		TrustProxy:        cfg.TrustProxy,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Cookie: handler.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		Renderer:      renderer,
		StaticHandler: view.StaticHandler(),

		AuthService: authService,
		TaskService: taskService,

		DB:             db,
		MetricsHandler: metrics.Handler(registry),
	})

	return router, rateLimiter.Stop, nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := bootstrap.InitSchema(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runReset は全テーブルを再作成し、デモデータを投入する。
func runReset(cfg *config.Config) error {
	slog.Warn("resetting database, all data will be lost",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	db, err := database.Connect(context.Background(), cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := bootstrap.Reset(context.Background(), cfg.DatabaseURL, newSeeder(cfg, db)); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	slog.Info("database reset with demo data",
		slog.String("username", bootstrap.DemoUsername),
	)
	return nil
}

// runSeed はデモデータが無い場合のみ投入する。
func runSeed(cfg *config.Config) error {
	if err := runMigrate(cfg); err != nil {
		return err
	}

	db, err := database.Connect(context.Background(), cfg.DatabaseURL, connectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	seeded, err := newSeeder(cfg, db).SeedDemo(context.Background())
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("seed completed", slog.Bool("seeded", seeded))
	return nil
}

func newSeeder(cfg *config.Config, db *sql.DB) *bootstrap.Seeder {
	return bootstrap.NewSeeder(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresTaskRepo(db),
		auth.NewPasswordHasher(0),
		bootstrap.SeederConfig{Location: cfg.Location},
	)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
