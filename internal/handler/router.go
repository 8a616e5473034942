package handler

import (
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/teukusulthan/instacard/internal/metrics"
	"github.com/teukusulthan/instacard/internal/middleware"
	"github.com/teukusulthan/instacard/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Backend  Backend
	Verifier session.Verifier
	Pages    Config

	// ミドルウェア依存
	CSRF               middleware.CSRFConfig
	CORSAllowedOrigins []string
	// LoginLimiter はログイン・登録フォームの送信に適用する。nilなら制限しない。
	LoginLimiter *middleware.RateLimiter

	// APIPrefix とAPIProxyが両方設定されている場合、APIPrefix配下をプロキシする。
	APIPrefix string
	APIProxy  http.Handler

	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → RequestID → Logging → Recovery → SecurityHeaders → CORS
//
// ページルートと、どのルートにも一致しないパスはさらに Guard → CSRF を通る。/health、/metrics、/api/csrf-token、
// 静的ファイル、APIプロキシはガードの外に配置する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	rd, err := newRenderer(logger)
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static assets: %w", err)
	}

	pd := &pageDeps{
		backend: deps.Backend,
		config:  deps.Pages,
		render:  rd,
		metrics: mc,
		logger:  logger,
	}
	auth := &AuthHandler{pd}
	dash := &DashboardHandler{pd}
	pages := &PageHandler{pd}

	limit := func(next http.Handler) http.Handler { return next }
	if deps.LoginLimiter != nil {
		limit = deps.LoginLimiter.Middleware()
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	// --- ガード外のルート ---
	r.Get("/health", Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Handle("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	if deps.APIProxy != nil && deps.APIPrefix != "" {
		r.Handle(deps.APIPrefix+"/*", deps.APIProxy)
	}

	// --- ページルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewGuardMiddleware(deps.Verifier, mc, logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", pages.Landing)

		r.Get("/login", auth.LoginPage)
		r.With(limit).Post("/login", auth.Login)
		r.Get("/register", auth.RegisterPage)
		r.With(limit).Post("/register", auth.Register)
		r.Post("/logout", auth.Logout)

		r.Get("/dashboard", dash.Show)
		r.Get("/dashboard/*", dash.Show)
		r.Get("/settings", dash.Show)
		r.Get("/account", dash.Show)
		r.Post("/dashboard/links", dash.AddLink)
		r.Post("/dashboard/links/{id}/delete", dash.RemoveLink)
		r.Post("/dashboard/socials", dash.UpsertSocial)
		r.Post("/dashboard/socials/{id}/delete", dash.RemoveSocial)
		r.Post("/dashboard/socials/{id}/move", dash.MoveSocial)
		r.Post("/dashboard/socials/{id}/restore", dash.RestoreSocial)

		r.Get("/{username}", pages.Profile)

		// 一致しないパスもガードを通してから404にする
		r.NotFound(pages.NotFound)
		r.MethodNotAllowed(pages.MethodNotAllowed)
	})

	return r, nil
}
