package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/identity"
	"github.com/teukusulthan/instacard/internal/route"
)

const (
	msgUnreachable    = "Failed to reach server"
	msgRegisterFailed = "Registration failed"
	msgInvalidForm    = "Invalid form submission"
)

// loginForm はログインページの表示データ。
type loginForm struct {
	EmailOrUsername string
	Redirect        string
	Registered      bool
}

// registerForm は登録ページの表示データ。パスワードは再表示しない。
type registerForm struct {
	Name     string
	Username string
	Email    string
}

// AuthHandler はログイン・登録・ログアウトのハンドラー。
type AuthHandler struct {
	*pageDeps
}

// LoginPage はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.render.render(w, r, http.StatusOK, pageLogin, page{
		Title: "Log in",
		Data: loginForm{
			Redirect:   q.Get(route.RedirectParam),
			Registered: q.Get("registered") == "1",
		},
	})
}

// Login は資格情報をバックエンドに送り、成功したら元のページへリダイレクトする。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.render(w, r, http.StatusBadRequest, pageLogin, page{Title: "Log in", Error: msgInvalidForm, Data: loginForm{}})
		return
	}

	// ガードが307で転送した他フォームの送信はログインフォームの表示に戻す
	if _, ok := r.PostForm["emailOrUsername"]; !ok {
		http.Redirect(w, r, r.URL.RequestURI(), http.StatusSeeOther)
		return
	}

	redirect := r.PostFormValue(route.RedirectParam)
	if redirect == "" {
		redirect = r.URL.Query().Get(route.RedirectParam)
	}
	form := loginForm{
		EmailOrUsername: strings.TrimSpace(r.PostFormValue("emailOrUsername")),
		Redirect:        redirect,
	}
	payload := backend.LoginPayload{
		EmailOrUsername: form.EmailOrUsername,
		Password:        r.PostFormValue("password"),
	}

	sess, err := h.sessionFor(r)
	if err != nil {
		h.logger.Error("failed to create backend session", slog.String("error", err.Error()))
		h.render.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}

	res, err := h.storeFor(r, sess).Login(r.Context(), payload)
	if err != nil {
		var ve *identity.ValidationError
		var le *identity.LoginError
		switch {
		case errors.As(err, &ve):
			h.render.render(w, r, http.StatusUnprocessableEntity, pageLogin, page{
				Title:  "Log in",
				Fields: map[string]string{ve.Field: ve.Message},
				Data:   form,
			})
		case errors.As(err, &le):
			status := http.StatusUnauthorized
			var te *backend.TransportError
			if errors.As(le, &te) {
				status = http.StatusBadGateway
			}
			h.render.render(w, r, status, pageLogin, page{Title: "Log in", Error: le.Message, Data: form})
		default:
			h.logger.Error("login failed unexpectedly", slog.String("error", err.Error()))
			h.render.render(w, r, http.StatusInternalServerError, pageLogin, page{Title: "Log in", Error: "Login failed", Data: form})
		}
		return
	}

	h.forwardCookies(w, res.Cookies)
	http.Redirect(w, r, route.SafeRedirect(redirect), http.StatusSeeOther)
}

// RegisterPage は登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render.render(w, r, http.StatusOK, pageRegister, page{Title: "Register", Data: registerForm{}})
}

// Register は入力を検証して登録し、ログインページへリダイレクトする。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render.render(w, r, http.StatusBadRequest, pageRegister, page{Title: "Register", Error: msgInvalidForm, Data: registerForm{}})
		return
	}

	in := identity.RegisterForm{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Username:        strings.TrimSpace(r.PostFormValue("username")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	view := registerForm{Name: in.Name, Username: in.Username, Email: in.Email}

	if err := identity.ValidateRegister(in); err != nil {
		var ve *identity.ValidationError
		if errors.As(err, &ve) {
			h.render.render(w, r, http.StatusUnprocessableEntity, pageRegister, page{
				Title:  "Register",
				Fields: map[string]string{ve.Field: ve.Message},
				Data:   view,
			})
			return
		}
		h.render.render(w, r, http.StatusUnprocessableEntity, pageRegister, page{Title: "Register", Error: err.Error(), Data: view})
		return
	}

	sess, err := h.sessionFor(r)
	if err != nil {
		h.logger.Error("failed to create backend session", slog.String("error", err.Error()))
		h.render.renderError(w, r, http.StatusInternalServerError, "Something went wrong", "Please try again later.")
		return
	}

	if err := sess.Register(r.Context(), in.Payload()); err != nil {
		status, msg := http.StatusUnprocessableEntity, msgRegisterFailed
		var te *backend.TransportError
		var ae *backend.APIError
		switch {
		case errors.As(err, &te):
			status, msg = http.StatusBadGateway, msgUnreachable
		case errors.As(err, &ae) && ae.Message != "":
			msg = ae.Message
		}
		h.logger.Info("registration rejected",
			slog.String("username", in.Username),
			slog.String("error", err.Error()),
		)
		h.render.render(w, r, status, pageRegister, page{Title: "Register", Error: msg, Data: view})
		return
	}

	http.Redirect(w, r, route.LoginPath+"?"+url.Values{"registered": {"1"}}.Encode(), http.StatusSeeOther)
}

// Logout はバックエンドのセッションを破棄し、Cookieを失効させてログインページへ戻す。
// バックエンドの失敗にかかわらずCookieは失効させる。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessionFor(r)
	if err != nil {
		h.logger.Warn("failed to create backend session", slog.String("error", err.Error()))
	} else if sess.HasCredential() {
		h.forwardCookies(w, h.storeFor(r, sess).Logout(r.Context()))
	}

	h.expireSessionCookie(w)
	http.Redirect(w, r, route.LoginPath, http.StatusSeeOther)
}
