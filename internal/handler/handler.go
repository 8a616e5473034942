package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/identity"
	"github.com/teukusulthan/instacard/internal/metrics"
	"github.com/teukusulthan/instacard/internal/model"
)

// Backend はハンドラーが使うバックエンドクライアント。*backend.Clientが満たす。
type Backend interface {
	NewSession(credential string) (*backend.Session, error)
	PublicProfile(ctx context.Context, username string) (*model.PublicProfile, error)
	PublicSocials(ctx context.Context, username string) ([]model.SocialLink, error)
}

// Config はページハンドラーの設定。
type Config struct {
	SessionCookieName string
	CookieSecure      bool
	CookieDomain      string
	ImageBaseURL      string
	IdentityThrottle  time.Duration
}

// pageDeps はページハンドラー共通の依存関係。
type pageDeps struct {
	backend Backend
	config  Config
	render  *renderer
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// sessionFor はリクエストのCookieを引き継いだバックエンドセッションを返す。
func (d *pageDeps) sessionFor(r *http.Request) (*backend.Session, error) {
	return d.backend.NewSession(r.Header.Get("Cookie"))
}

// storeFor はリクエスト1件分のアイデンティティストアを返す。
func (d *pageDeps) storeFor(r *http.Request, sess *backend.Session) *identity.Store {
	path := r.URL.Path
	return identity.NewStore(sess, identity.Options{
		Throttle: d.config.IdentityThrottle,
		Location: func() string { return path },
		Logger:   d.logger,
		Metrics:  d.metrics,
	})
}

// forwardCookies はバックエンドのSet-Cookieをブラウザへ転送する。
// バックエンドのドメイン属性はエッジのホストに一致しないため外す。
func (d *pageDeps) forwardCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		fc := *c
		fc.Domain = d.config.CookieDomain
		if d.config.CookieSecure {
			fc.Secure = true
		}
		http.SetCookie(w, &fc)
	}
}

// expireSessionCookie は設定されたセッションCookieを即時失効させる。
func (d *pageDeps) expireSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     d.config.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   d.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   d.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
