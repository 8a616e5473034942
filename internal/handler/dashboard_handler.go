package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/gate"
	"github.com/teukusulthan/instacard/internal/identity"
	"github.com/teukusulthan/instacard/internal/model"
	"github.com/teukusulthan/instacard/internal/profile"
	"github.com/teukusulthan/instacard/internal/route"
)

// ダッシュボードへのリダイレクトで渡す通知コードと表示文言。
// クエリの値をそのまま表示しないよう、既知のコードだけを文言に変換する。
var (
	dashboardNotices = map[string]string{
		"link_added":      "Link added",
		"link_removed":    "Link removed",
		"social_saved":    "Social account saved",
		"social_removed":  "Social account removed",
		"social_moved":    "Order updated",
		"social_restored": "Social account restored",
	}
	dashboardErrors = map[string]string{
		"invalid_title":    "Title must be 1-100 characters",
		"invalid_url":      "Enter a valid URL",
		"invalid_platform": "Unsupported platform",
		"invalid_username": "Username is required",
		"invalid_index":    "Invalid position",
		"not_found":        "That item no longer exists",
		"unreachable":      msgUnreachable,
		"failed":           "Something went wrong. Please try again.",
	}
)

const msgLoadFailed = "Failed to load your links"

// undoIDPattern は取り消しフォームに埋め込めるIDの形式。
var undoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// dashboardView はダッシュボードの表示データ。
type dashboardView struct {
	Links     []model.Link
	Socials   []model.SocialLink
	Platforms []model.Platform
	UndoID    string
}

// DashboardHandler は保護レイアウト配下のページと編集操作のハンドラー。
type DashboardHandler struct {
	*pageDeps
}

// Show はユーザー情報を取得してゲート判定し、ダッシュボードを描画する。
// GET /dashboard, /dashboard/*, /settings, /account
func (h *DashboardHandler) Show(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionFor(r)
	if err != nil {
		h.logger.Error("failed to create backend session", slog.String("error", err.Error()))
		h.render.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}

	store := h.storeFor(r, sess)
	identity.NewBootstrapper(store).Run(r.Context(), r.URL.Path)

	// 検証は通ったがユーザー情報を取得できない場合はログインへ戻さない
	if store.Status() == identity.StatusError {
		h.render.renderError(w, r, http.StatusBadGateway, "Unavailable", store.Err())
		return
	}

	switch d := gate.Decide(store, r.URL); d.Action {
	case gate.Placeholder:
		h.render.render(w, r, http.StatusOK, pagePlaceholder, page{Title: "Loading"})
		return
	case gate.Redirect:
		http.Redirect(w, r, d.Location, http.StatusTemporaryRedirect)
		return
	}

	id := store.Identity()
	if id == nil {
		http.Redirect(w, r, route.LoginRedirect(r.URL.RequestURI()), http.StatusTemporaryRedirect)
		return
	}
	q := r.URL.Query()
	p := page{
		Title:  "Dashboard",
		Theme:  themeMode(id.Theme),
		Nav:    newNavData(id, h.config.ImageBaseURL),
		Notice: dashboardNotices[q.Get("notice")],
		Error:  dashboardErrors[q.Get("error")],
	}

	ps := profile.NewStore(sess, h.logger)
	if err := ps.Load(r.Context()); err != nil {
		h.logger.Warn("failed to load dashboard data",
			slog.String("user_id", id.ID),
			slog.String("error", err.Error()),
		)
		p.Error = msgLoadFailed
	}
	view := dashboardView{
		Links:     ps.Links(),
		Socials:   ps.Socials(),
		Platforms: model.Platforms,
	}
	if undo := q.Get("undo"); q.Get("notice") == "social_removed" && undoIDPattern.MatchString(undo) {
		view.UndoID = undo
	}
	p.Data = view

	h.render.render(w, r, http.StatusOK, pageDashboard, p)
}

// AddLink はリンクを追加する。
// POST /dashboard/links
func (h *DashboardHandler) AddLink(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "link_added", false, func(ctx context.Context, ps *profile.Store) error {
		_, err := ps.AddLink(ctx, r.PostFormValue("title"), r.PostFormValue("url"))
		return err
	})
}

// RemoveLink はリンクを削除する。
// POST /dashboard/links/{id}/delete
func (h *DashboardHandler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "link_removed", true, func(ctx context.Context, ps *profile.Store) error {
		return ps.RemoveLink(ctx, id)
	})
}

// UpsertSocial はSNSリンクを作成または更新する。
// POST /dashboard/socials
func (h *DashboardHandler) UpsertSocial(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "social_saved", false, func(ctx context.Context, ps *profile.Store) error {
		_, err := ps.UpsertSocial(ctx, model.Platform(r.PostFormValue("platform")), r.PostFormValue("username"))
		return err
	})
}

// RemoveSocial はSNSリンクを削除する。
// POST /dashboard/socials/{id}/delete
func (h *DashboardHandler) RemoveSocial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	done := url.Values{"notice": {"social_removed"}}
	if undoIDPattern.MatchString(id) {
		done.Set("undo", id)
	}
	h.mutateWith(w, r, done, true, func(ctx context.Context, ps *profile.Store) error {
		return ps.RemoveSocial(ctx, id)
	})
}

// RestoreSocial は削除したSNSリンクを復元する。
// POST /dashboard/socials/{id}/restore
func (h *DashboardHandler) RestoreSocial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutate(w, r, "social_restored", false, func(ctx context.Context, ps *profile.Store) error {
		_, err := ps.RestoreSocial(ctx, id)
		return err
	})
}

// MoveSocial はSNSリンクの並び順を変更する。
// POST /dashboard/socials/{id}/move
func (h *DashboardHandler) MoveSocial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(r.PostFormValue("index"))
	if err != nil {
		redirectToDashboard(w, r, "error", "invalid_index")
		return
	}
	h.mutate(w, r, "social_moved", true, func(ctx context.Context, ps *profile.Store) error {
		return ps.MoveSocial(ctx, id, index)
	})
}

// mutate は編集操作を実行してダッシュボードへ戻す。
// loadがtrueの場合は現在の一覧を読み込んでから操作する。
func (h *DashboardHandler) mutate(w http.ResponseWriter, r *http.Request, notice string, load bool, fn func(ctx context.Context, ps *profile.Store) error) {
	h.mutateWith(w, r, url.Values{"notice": {notice}}, load, fn)
}

// mutateWith は成功時のクエリを指定できるmutate。
func (h *DashboardHandler) mutateWith(w http.ResponseWriter, r *http.Request, done url.Values, load bool, fn func(ctx context.Context, ps *profile.Store) error) {
	sess, err := h.sessionFor(r)
	if err != nil {
		h.logger.Error("failed to create backend session", slog.String("error", err.Error()))
		redirectToDashboard(w, r, "error", "failed")
		return
	}

	ps := profile.NewStore(sess, h.logger)
	if load {
		if err := ps.Load(r.Context()); err != nil {
			h.failMutation(w, r, err)
			return
		}
	}
	if err := fn(r.Context(), ps); err != nil {
		h.failMutation(w, r, err)
		return
	}

	http.Redirect(w, r, route.HomePath+"?"+done.Encode(), http.StatusSeeOther)
}

func (h *DashboardHandler) failMutation(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, backend.ErrUnauthorized) {
		http.Redirect(w, r, route.LoginRedirect(route.HomePath), http.StatusSeeOther)
		return
	}
	code := mutationErrorCode(err)
	if code == "failed" {
		h.logger.Error("dashboard mutation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	redirectToDashboard(w, r, "error", code)
}

// mutationErrorCode はエラーを表示用コードに変換する。
func mutationErrorCode(err error) string {
	var ve *identity.ValidationError
	var te *backend.TransportError
	switch {
	case errors.As(err, &ve):
		if _, ok := dashboardErrors["invalid_"+ve.Field]; ok {
			return "invalid_" + ve.Field
		}
		return "failed"
	case errors.As(err, &te):
		return "unreachable"
	case errors.Is(err, backend.ErrNotFound):
		return "not_found"
	default:
		return "failed"
	}
}

func redirectToDashboard(w http.ResponseWriter, r *http.Request, key, code string) {
	http.Redirect(w, r, route.HomePath+"?"+url.Values{key: {code}}.Encode(), http.StatusSeeOther)
}
