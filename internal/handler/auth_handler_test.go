package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestLoginPage_RendersFormWithCSRFToken(t *testing.T) {
	e := newTestEnv(t)
	w := e.get("/login?redirect=/dashboard/settings", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	c := findCookie(w, "csrf_token")
	if c == nil {
		t.Fatal("csrf_token cookie should be issued")
	}
	body := w.Body.String()
	if !strings.Contains(body, `name="csrf_token" value="`+c.Value+`"`) {
		t.Error("form should embed the CSRF token")
	}
	if !strings.Contains(body, `name="redirect" value="/dashboard/settings"`) {
		t.Error("form should carry the redirect target")
	}
}

func TestLoginPage_RegisteredNotice(t *testing.T) {
	e := newTestEnv(t)
	w := e.get("/login?registered=1", "")

	if !strings.Contains(w.Body.String(), "Account created") {
		t.Error("registered notice should be shown")
	}
}

func TestLoginPage_AuthenticatedRedirectsToDashboard(t *testing.T) {
	e := newTestEnv(t)
	w := e.get("/login", goodToken)

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if loc := w.Header().Get("Location"); loc != "/dashboard" {
		t.Errorf("Location = %q, want %q", loc, "/dashboard")
	}
}

func TestLogin_SuccessForwardsCookiesAndRedirects(t *testing.T) {
	tests := []struct {
		name     string
		redirect string
		want     string
	}{
		{name: "元のページへ戻る", redirect: "/dashboard/settings", want: "/dashboard/settings"},
		{name: "未指定はダッシュボード", redirect: "", want: "/dashboard"},
		{name: "外部URLは拒否", redirect: "https://evil.example/", want: "/dashboard"},
		{name: "スキーム相対URLは拒否", redirect: "//evil.example/", want: "/dashboard"},
		{name: "ログアウトは拒否", redirect: "/logout", want: "/dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			w := e.post("/login", url.Values{
				"emailOrUsername": {"alice"},
				"password":        {testPassword},
				"redirect":        {tt.redirect},
			}, "")

			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusSeeOther, w.Body.String())
			}
			if loc := w.Header().Get("Location"); loc != tt.want {
				t.Errorf("Location = %q, want %q", loc, tt.want)
			}

			token := findCookie(w, "token")
			if token == nil || token.Value != goodToken {
				t.Fatalf("token cookie = %+v, want value %q", token, goodToken)
			}
			if !token.HttpOnly {
				t.Error("token cookie should stay HttpOnly")
			}
			if pref := findCookie(w, "pref"); pref == nil || pref.Domain != "" {
				t.Errorf("pref cookie = %+v, want forwarded without backend domain", pref)
			}
		})
	}
}

func TestLogin_RedirectFromQuery(t *testing.T) {
	e := newTestEnv(t)
	w := e.post("/login?redirect=/account", url.Values{
		"emailOrUsername": {"alice"},
		"password":        {testPassword},
	}, "")

	if loc := w.Header().Get("Location"); loc != "/account" {
		t.Errorf("Location = %q, want %q", loc, "/account")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newTestEnv(t)
	w := e.post("/login", url.Values{
		"emailOrUsername": {"alice"},
		"password":        {"wrong-password"},
	}, "")

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Invalid credentials") {
		t.Error("backend message should be shown")
	}
	if !strings.Contains(body, `value="alice"`) {
		t.Error("identifier should be kept in the form")
	}
	if findCookie(w, "token") != nil {
		t.Error("no session cookie should be set")
	}
}

func TestLogin_ValidationErrorSkipsBackend(t *testing.T) {
	e := newTestEnv(t)
	e.backend.Close()

	w := e.post("/login", url.Values{
		"emailOrUsername": {"alice"},
		"password":        {"short"},
	}, "")

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(w.Body.String(), "Password must be at least 8 characters long") {
		t.Error("field error should be rendered")
	}
}

func TestLogin_BackendUnreachable(t *testing.T) {
	e := newTestEnv(t)
	e.backend.Close()

	w := e.post("/login", url.Values{
		"emailOrUsername": {"alice"},
		"password":        {testPassword},
	}, "")

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if !strings.Contains(w.Body.String(), "Failed to reach server") {
		t.Error("transport failure message should be shown")
	}
}

func TestLogin_RequiresCSRFToken(t *testing.T) {
	e := newTestEnv(t)

	body := strings.NewReader(url.Values{"emailOrUsername": {"alice"}, "password": {testPassword}}.Encode())
	r := httptest.NewRequest(http.MethodPost, "/login", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestLogin_ForeignFormShowsLoginPage(t *testing.T) {
	e := newTestEnv(t)
	w := e.post("/login?redirect=/logout", nil, "")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/login?redirect=/logout" {
		t.Errorf("Location = %q, want %q", loc, "/login?redirect=/logout")
	}
}

func TestRegister_Success(t *testing.T) {
	e := newTestEnv(t)
	w := e.post("/register", url.Values{
		"name":            {"Bob Builder"},
		"username":        {"bob_b"},
		"email":           {"bob@example.com"},
		"password":        {testPassword},
		"confirmPassword": {testPassword},
	}, "")

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusSeeOther, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/login?registered=1" {
		t.Errorf("Location = %q, want %q", loc, "/login?registered=1")
	}

	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	if len(e.fake.registered) != 1 {
		t.Fatalf("registered = %d, want 1", len(e.fake.registered))
	}
	got := e.fake.registered[0]
	if got["username"] != "bob_b" || got["email"] != "bob@example.com" || got["name"] != "Bob Builder" {
		t.Errorf("payload = %v", got)
	}
	if _, ok := got["confirmPassword"]; ok {
		t.Error("confirmPassword should not be sent to the backend")
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	valid := func() url.Values {
		return url.Values{
			"name":            {"Bob Builder"},
			"username":        {"bob_b"},
			"email":           {"bob@example.com"},
			"password":        {testPassword},
			"confirmPassword": {testPassword},
		}
	}

	tests := []struct {
		name  string
		field string
		value string
		want  string
	}{
		{name: "名前が短い", field: "name", value: "Bo", want: "Full name is required"},
		{name: "ユーザー名に記号", field: "username", value: "bob.b", want: "Only letters, numbers, and underscore"},
		{name: "メール形式", field: "email", value: "bob", want: "Invalid email format"},
		{name: "確認不一致", field: "confirmPassword", value: "different123", want: "Passwords do not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			form := valid()
			form.Set(tt.field, tt.value)

			w := e.post("/register", form, "")

			if w.Code != http.StatusUnprocessableEntity {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("body should contain %q", tt.want)
			}
			if strings.Contains(w.Body.String(), testPassword) {
				t.Error("password should not be echoed back")
			}
			e.fake.mu.Lock()
			n := len(e.fake.registered)
			e.fake.mu.Unlock()
			if n != 0 {
				t.Errorf("registered = %d, want 0", n)
			}
		})
	}
}

func TestRegister_BackendRejects(t *testing.T) {
	e := newTestEnv(t)
	w := e.post("/register", url.Values{
		"name":            {"Taken User"},
		"username":        {"taken"},
		"email":           {"taken@example.com"},
		"password":        {testPassword},
		"confirmPassword": {testPassword},
	}, "")

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if !strings.Contains(w.Body.String(), "Username already taken") {
		t.Error("backend message should be shown")
	}
}

func TestLogout_ExpiresCookieAndCallsBackend(t *testing.T) {
	e := newTestEnv(t)
	w := e.post("/logout", nil, goodToken)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want %q", loc, "/login")
	}
	c := findCookie(w, "token")
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("token cookie = %+v, want expired", c)
	}

	e.fake.mu.Lock()
	defer e.fake.mu.Unlock()
	if e.fake.logouts != 1 {
		t.Errorf("backend logouts = %d, want 1", e.fake.logouts)
	}
}

func TestLogout_WithoutValidSessionStillExpiresCookie(t *testing.T) {
	tests := []struct {
		name        string
		token       string
		wantLogouts int
	}{
		{name: "Cookieなし", token: "", wantLogouts: 0},
		{name: "期限切れのセッション", token: "stale", wantLogouts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			w := e.post("/logout", nil, tt.token)

			if w.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
			}
			if loc := w.Header().Get("Location"); loc != "/login" {
				t.Errorf("Location = %q, want %q", loc, "/login")
			}
			if c := findCookie(w, "token"); c == nil || c.MaxAge >= 0 {
				t.Errorf("token cookie = %+v, want expired", c)
			}

			e.fake.mu.Lock()
			defer e.fake.mu.Unlock()
			if e.fake.logouts != tt.wantLogouts {
				t.Errorf("backend logouts = %d, want %d", e.fake.logouts, tt.wantLogouts)
			}
		})
	}
}

func TestLogout_BackendUnreachableStillExpiresCookie(t *testing.T) {
	e := newTestEnv(t)
	e.backend.Close()

	w := e.post("/logout", nil, goodToken)

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if c := findCookie(w, "token"); c == nil || c.MaxAge >= 0 {
		t.Errorf("token cookie = %+v, want expired", c)
	}
}
