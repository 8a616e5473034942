package handler

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/teukusulthan/instacard/internal/middleware"
	"github.com/teukusulthan/instacard/internal/model"
)

// NewAPIProxy はAPIリクエストをそのままのパスでバックエンドへ転送するリバースプロキシを返す。
// バックエンドに到達できない場合は統一フォーマットの502を返す。
func NewAPIProxy(target *url.URL, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Warn("api proxy failed",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewBackendUnavailableError())
		},
	}
}
