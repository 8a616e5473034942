package middleware

import (
	"log/slog"
	"net/http"

	"github.com/teukusulthan/instacard/internal/metrics"
	"github.com/teukusulthan/instacard/internal/route"
	"github.com/teukusulthan/instacard/internal/session"
)

// ガード判定のラベル
const (
	guardPass     = "pass"
	guardRedirect = "redirect"
)

// NewGuardMiddleware はパスの分類に応じてセッションを検証するルートガードを返す。
//
//   - 静的アセット、ルート、公開プロフィールは検証せずに通す。
//   - 認証前ページの表示はセッションが有効ならダッシュボードへリダイレクトし、
//     無効・検証失敗なら通す。フォーム送信は検証しない。
//   - ログアウトの送信は検証せず通し、ハンドラーにCookieを破棄させる。
//   - 保護ページはセッションが無効・検証失敗ならログインへリダイレクトし、
//     有効ならユーザーIDをコンテキストに注入して通す。
//
// リダイレクトは307で、エラーページは書かない。
func NewGuardMiddleware(v session.Verifier, mc metrics.MetricsCollector, logger *slog.Logger) func(next http.Handler) http.Handler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			class := route.Classify(r.URL.Path)

			if r.Method == http.MethodPost && route.IsLogout(r.URL.Path) {
				mc.RecordGuardDecision(class.String(), guardPass)
				next.ServeHTTP(w, r)
				return
			}

			switch class {
			case route.PublicStatic, route.Root, route.PublicProfile:
				mc.RecordGuardDecision(class.String(), guardPass)
				next.ServeHTTP(w, r)
				return

			case route.AuthOnly:
				// フォーム送信は検証せずハンドラーへ渡す。
				if !isSafeMethod(r.Method) {
					mc.RecordGuardDecision(class.String(), guardPass)
					next.ServeHTTP(w, r)
					return
				}
				if _, err := v.Verify(r.Context(), r.Header.Get("Cookie")); err == nil {
					mc.RecordGuardDecision(class.String(), guardRedirect)
					http.Redirect(w, r, route.HomePath, http.StatusTemporaryRedirect)
					return
				}
				mc.RecordGuardDecision(class.String(), guardPass)
				next.ServeHTTP(w, r)
				return
			}

			id, err := v.Verify(r.Context(), r.Header.Get("Cookie"))
			if err != nil {
				mc.RecordGuardDecision(class.String(), guardRedirect)
				logger.Debug("guard redirecting to login",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				http.Redirect(w, r, route.LoginRedirect(r.URL.RequestURI()), http.StatusTemporaryRedirect)
				return
			}

			mc.RecordGuardDecision(class.String(), guardPass)
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), id.ID)))
		})
	}
}
