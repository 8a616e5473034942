// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/teukusulthan/instacard/internal/middleware"
	"github.com/teukusulthan/instacard/internal/security"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページテンプレート名
const (
	pageLanding     = "landing"
	pageLogin       = "login"
	pageRegister    = "register"
	pageDashboard   = "dashboard"
	pagePlaceholder = "placeholder"
	pageProfile     = "profile"
	pageError       = "error"
)

var templateFuncs = template.FuncMap{
	"linkDomain": security.LinkDomain,
	"inc":        func(i int) int { return i + 1 },
	"dec":        func(i int) int { return i - 1 },
}

// page は全ページ共通のテンプレートデータ。
type page struct {
	Title     string
	Theme     string
	CSRFToken string
	Nav       *navData
	Notice    string
	Error     string
	Fields    map[string]string
	Data      any
}

// renderer はレイアウトとページを組み合わせたテンプレートを保持する。
type renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func newRenderer(logger *slog.Logger) (*renderer, error) {
	names := []string{pageLanding, pageLogin, pageRegister, pageDashboard, pagePlaceholder, pageProfile, pageError}
	rd := &renderer{pages: make(map[string]*template.Template, len(names)), logger: logger}
	for _, name := range names {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		rd.pages[name] = t
	}
	return rd, nil
}

// render はページをバッファに描画してから書き込む。
// 描画に失敗した場合は途中までのHTMLを返さず500にする。
func (rd *renderer) render(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	t, ok := rd.pages[name]
	if !ok {
		rd.logger.Error("unknown template", slog.String("name", name))
		middleware.WriteInternalServerError(w)
		return
	}
	if p.Theme == "" {
		p.Theme = "dark"
	}
	if p.CSRFToken == "" {
		p.CSRFToken = middleware.CSRFTokenFromContext(r.Context())
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		rd.logger.Error("failed to render template",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderError はエラーページを描画する。
func (rd *renderer) renderError(w http.ResponseWriter, r *http.Request, status int, title, message string) {
	rd.render(w, r, status, pageError, page{Title: title, Error: message})
}
