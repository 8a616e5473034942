package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/config"
	"github.com/teukusulthan/instacard/internal/handler"
	"github.com/teukusulthan/instacard/internal/logger"
	"github.com/teukusulthan/instacard/internal/metrics"
	"github.com/teukusulthan/instacard/internal/middleware"
	"github.com/teukusulthan/instacard/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前でもログを出せるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定のログレベルで組み直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.Bool("proxy_api", cfg.ProxiesAPI()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, nil)
}

// server は組み立て済みのHTTPサーバーと後始末の対象。
type server struct {
	http    *http.Server
	limiter *middleware.RateLimiter
}

// newServer は全依存関係をワイヤリングしてHTTPサーバーを構築する。
func newServer(cfg *config.Config) (*server, error) {
	log := slog.Default()

	// 1. バックエンドクライアント
	client, err := backend.NewClient(&http.Client{Timeout: cfg.BackendTimeout}, cfg.BackendAPIURL(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mc := metrics.NewCollector(reg)

	// 3. セッション検証
	verifier := session.NewHTTPVerifier(client, cfg.VerifyTimeout, mc, log)

	// 4. ルーター
	limiter := middleware.NewRateLimiter(middleware.PerMinute(cfg.RateLimitLogin), log)
	deps := &handler.RouterDeps{
		Backend:  client,
		Verifier: verifier,
		Pages: handler.Config{
			SessionCookieName: cfg.SessionCookieName,
			CookieSecure:      cfg.CookieSecure,
			CookieDomain:      cfg.CookieDomain,
			ImageBaseURL:      cfg.ImageBaseURL,
			IdentityThrottle:  cfg.IdentityThrottle,
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		LoginLimiter:       limiter,
		Metrics:            mc,
		Gatherer:           reg,
		Logger:             log,
	}

	// API_BASE_URLが相対パスの場合は同一オリジンでバックエンドへ中継する
	if cfg.ProxiesAPI() {
		target, err := url.Parse(cfg.BackendURL)
		if err != nil {
			limiter.Stop()
			return nil, fmt.Errorf("invalid BACKEND_URL: %w", err)
		}
		deps.APIPrefix = cfg.APIBaseURL
		deps.APIProxy = handler.NewAPIProxy(target, log)
	}

	router, err := handler.NewRouter(deps)
	if err != nil {
		limiter.Stop()
		return nil, fmt.Errorf("failed to build router: %w", err)
	}

	return &server{
		http: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		limiter: limiter,
	}, nil
}

// runServe はHTTPサーバーを起動し、ctxが終了するとグレースフルシャットダウンを行う。
// lnがnilの場合はcfg.ServerPortでlistenする。
func runServe(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	defer srv.limiter.Stop()

	if ln == nil {
		ln, err = net.Listen("tcp", srv.http.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", srv.http.Addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", slog.String("addr", ln.Addr().String()))
		if err := srv.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
