package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/route"
)

// PageHandler は認証不要の公開ページのハンドラー。
type PageHandler struct {
	*pageDeps
}

// Landing はトップページを表示する。
// GET /
func (h *PageHandler) Landing(w http.ResponseWriter, r *http.Request) {
	h.render.render(w, r, http.StatusOK, pageLanding, page{})
}

// Profile は公開プロフィールを表示する。
// GET /{username}
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" || route.IsReserved(username) {
		h.notFound(w, r)
		return
	}

	p, err := h.backend.PublicProfile(r.Context(), username)
	if err != nil {
		var te *backend.TransportError
		switch {
		case errors.Is(err, backend.ErrNotFound):
			h.notFound(w, r)
		case errors.As(err, &te):
			h.logger.Warn("public profile unreachable",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			h.render.renderError(w, r, http.StatusBadGateway, "Unavailable", msgUnreachable)
		default:
			h.logger.Error("failed to load public profile",
				slog.String("username", username),
				slog.String("error", err.Error()),
			)
			h.render.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		}
		return
	}

	socials, err := h.backend.PublicSocials(r.Context(), username)
	if err != nil {
		h.logger.Warn("failed to load public socials, using embedded list",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		socials = nil
		for _, s := range p.Socials {
			if s.IsActive {
				socials = append(socials, s)
			}
		}
	}

	view := newProfileView(p, socials, h.config.ImageBaseURL)
	h.render.render(w, r, http.StatusOK, pageProfile, page{
		Title: view.DisplayName,
		Theme: themeMode(p.Theme),
		Data:  view,
	})
}

// NotFound はどのルートにも一致しないパスに404ページを返す。
func (h *PageHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.render.renderError(w, r, http.StatusNotFound, "Page not found", "There is nothing at this address.")
}

// MethodNotAllowed は対応していないメソッドに405ページを返す。
func (h *PageHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.render.renderError(w, r, http.StatusMethodNotAllowed, "Method not allowed", "This page does not accept that request.")
}

func (h *PageHandler) notFound(w http.ResponseWriter, r *http.Request) {
	h.render.renderError(w, r, http.StatusNotFound, "Profile not found", "This Instacard does not exist.")
}
