package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/teukusulthan/instacard/internal/backend"
	"github.com/teukusulthan/instacard/internal/middleware"
	"github.com/teukusulthan/instacard/internal/session"
)

const (
	goodToken    = "good"
	testPassword = "password123"
	testCSRF     = "csrf-test-token"
)

// fakeBackend はテスト用のバックエンドAPI。
// token=good のCookieを持つリクエストをユーザーalice（id=7）として扱う。
type fakeBackend struct {
	mu          sync.Mutex
	links       []map[string]any
	socials     []map[string]any
	removed     []map[string]any
	nextID      int
	deleteFails bool
	meFails     bool
	down        bool
	logouts     int
	registered  []map[string]string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		links: []map[string]any{
			{"id": "l1", "title": "Blog", "url": "https://alice.dev"},
		},
		socials: []map[string]any{
			{"id": "s1", "platform": "github", "username": "alice", "url": "https://github.com/alice", "order_index": 0, "is_active": true},
			{"id": "s2", "platform": "twitter", "username": "alice", "url": "https://x.com/alice", "order_index": 1, "is_active": true},
		},
		nextID: 100,
	}
}

func envelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

func failure(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": msg})
}

func authenticated(r *http.Request) bool {
	c, err := r.Cookie("token")
	return err == nil && c.Value == goodToken
}

func (f *fakeBackend) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			down := f.down
			f.mu.Unlock()
			if down {
				failure(w, http.StatusServiceUnavailable, "maintenance")
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/auth/verify", func(w http.ResponseWriter, req *http.Request) {
			if !authenticated(req) {
				failure(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			envelope(w, http.StatusOK, map[string]any{"id": 7})
		})
		r.Post("/auth/login", func(w http.ResponseWriter, req *http.Request) {
			var in map[string]string
			_ = json.NewDecoder(req.Body).Decode(&in)
			if in["emailOrUsername"] != "alice" || in["password"] != testPassword {
				failure(w, http.StatusUnauthorized, "Invalid credentials")
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "token", Value: goodToken, Path: "/", HttpOnly: true})
			http.SetCookie(w, &http.Cookie{Name: "pref", Value: "1", Path: "/", Domain: "backend.internal"})
			envelope(w, http.StatusOK, nil)
		})
		r.Post("/auth/logout", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.logouts++
			f.mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "", Path: "/", MaxAge: -1})
			envelope(w, http.StatusOK, nil)
		})
		r.Post("/auth/register", func(w http.ResponseWriter, req *http.Request) {
			var in map[string]string
			_ = json.NewDecoder(req.Body).Decode(&in)
			if in["username"] == "taken" {
				failure(w, http.StatusConflict, "Username already taken")
				return
			}
			f.mu.Lock()
			f.registered = append(f.registered, in)
			f.mu.Unlock()
			envelope(w, http.StatusCreated, map[string]any{"id": 8})
		})

		r.Get("/user/me", func(w http.ResponseWriter, req *http.Request) {
			if !authenticated(req) {
				failure(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			f.mu.Lock()
			meFails := f.meFails
			f.mu.Unlock()
			if meFails {
				failure(w, http.StatusInternalServerError, "Profile service unavailable")
				return
			}
			envelope(w, http.StatusOK, map[string]any{"user": map[string]any{
				"id": 7, "username": "alice", "name": "Alice Doe", "email": "alice@example.com",
				"avatar": "alice.png", "theme": "light",
			}})
		})
		r.Get("/user/public/{username}", func(w http.ResponseWriter, req *http.Request) {
			if chi.URLParam(req, "username") != "alice" {
				failure(w, http.StatusNotFound, "User not found")
				return
			}
			envelope(w, http.StatusOK, map[string]any{
				"username": "alice", "name": "Alice Doe", "bio": "<b>hi</b> there",
				"avatarUrl": "https://cdn.example/alice.png",
				"links": []map[string]any{
					{"id": "l1", "title": "Blog", "url": "https://alice.dev"},
					{"id": "l2", "title": "Local", "url": "http://127.0.0.1/admin"},
				},
			})
		})
		r.Get("/social/public/{username}", func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			envelope(w, http.StatusOK, f.socials)
		})

		r.Group(func(r chi.Router) {
			r.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					if !authenticated(req) {
						failure(w, http.StatusUnauthorized, "Unauthorized")
						return
					}
					next.ServeHTTP(w, req)
				})
			})

			r.Get("/link", func(w http.ResponseWriter, req *http.Request) {
				f.mu.Lock()
				defer f.mu.Unlock()
				envelope(w, http.StatusOK, f.links)
			})
			r.Post("/link", func(w http.ResponseWriter, req *http.Request) {
				var in map[string]string
				_ = json.NewDecoder(req.Body).Decode(&in)
				f.mu.Lock()
				defer f.mu.Unlock()
				f.nextID++
				l := map[string]any{"id": "l" + strconv.Itoa(f.nextID), "title": in["title"], "url": in["url"]}
				f.links = append(f.links, l)
				envelope(w, http.StatusCreated, l)
			})
			r.Delete("/link/{id}", func(w http.ResponseWriter, req *http.Request) {
				f.mu.Lock()
				defer f.mu.Unlock()
				if f.deleteFails {
					failure(w, http.StatusInternalServerError, "delete failed")
					return
				}
				id := chi.URLParam(req, "id")
				for i, l := range f.links {
					if l["id"] == id {
						f.links = append(f.links[:i], f.links[i+1:]...)
						envelope(w, http.StatusOK, nil)
						return
					}
				}
				failure(w, http.StatusNotFound, "Link not found")
			})

			r.Get("/social", func(w http.ResponseWriter, req *http.Request) {
				f.mu.Lock()
				defer f.mu.Unlock()
				envelope(w, http.StatusOK, f.socials)
			})
			r.Put("/social", func(w http.ResponseWriter, req *http.Request) {
				var in map[string]string
				_ = json.NewDecoder(req.Body).Decode(&in)
				f.mu.Lock()
				defer f.mu.Unlock()
				f.nextID++
				s := map[string]any{"id": "s" + strconv.Itoa(f.nextID), "platform": in["platform"], "username": in["username"], "is_active": true}
				f.socials = append(f.socials, s)
				envelope(w, http.StatusOK, s)
			})
			r.Patch("/social/{id}/order", func(w http.ResponseWriter, req *http.Request) {
				var in map[string]int
				_ = json.NewDecoder(req.Body).Decode(&in)
				f.mu.Lock()
				defer f.mu.Unlock()
				id := chi.URLParam(req, "id")
				for i, s := range f.socials {
					if s["id"] == id {
						f.socials = append(f.socials[:i], f.socials[i+1:]...)
						to := min(in["order_index"], len(f.socials))
						f.socials = append(f.socials[:to], append([]map[string]any{s}, f.socials[to:]...)...)
						envelope(w, http.StatusOK, s)
						return
					}
				}
				failure(w, http.StatusNotFound, "Social not found")
			})
			r.Delete("/social/{id}", func(w http.ResponseWriter, req *http.Request) {
				f.mu.Lock()
				defer f.mu.Unlock()
				id := chi.URLParam(req, "id")
				for i, s := range f.socials {
					if s["id"] == id {
						f.socials = append(f.socials[:i], f.socials[i+1:]...)
						f.removed = append(f.removed, s)
						envelope(w, http.StatusOK, nil)
						return
					}
				}
				failure(w, http.StatusNotFound, "Social not found")
			})
			r.Patch("/social/{id}/restore", func(w http.ResponseWriter, req *http.Request) {
				f.mu.Lock()
				defer f.mu.Unlock()
				id := chi.URLParam(req, "id")
				for i, s := range f.removed {
					if s["id"] == id {
						f.removed = append(f.removed[:i], f.removed[i+1:]...)
						f.socials = append(f.socials, s)
						envelope(w, http.StatusOK, s)
						return
					}
				}
				failure(w, http.StatusNotFound, "Social not found")
			})
		})
	})
	return r
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv はフェイクバックエンドに接続したルーター一式。
type testEnv struct {
	fake    *fakeBackend
	backend *httptest.Server
	router  http.Handler
}

func newTestEnv(t *testing.T, mutate ...func(*RouterDeps)) *testEnv {
	t.Helper()
	fake := newFakeBackend()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)
	return newTestEnvWithBackend(t, &testEnv{fake: fake, backend: srv}, mutate...)
}

// newTestEnvWithBackend は既存のフェイクバックエンドを使ってルーターを組み直す。
func newTestEnvWithBackend(t *testing.T, base *testEnv, mutate ...func(*RouterDeps)) *testEnv {
	t.Helper()
	fake, srv := base.fake, base.backend

	client, err := backend.NewClient(srv.Client(), srv.URL+"/api/v1", discardLogger())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	deps := &RouterDeps{
		Backend:  client,
		Verifier: session.NewHTTPVerifier(client, 0, nil, discardLogger()),
		Pages: Config{
			SessionCookieName: "token",
			ImageBaseURL:      "https://img.example",
		},
		CSRF:   middleware.CSRFConfig{},
		Logger: discardLogger(),
	}
	for _, m := range mutate {
		m(deps)
	}

	router, err := NewRouter(deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return &testEnv{fake: fake, backend: srv, router: router}
}

// get はセッションCookie（任意）付きでGETする。
func (e *testEnv) get(target string, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// post はCSRFトークンを付けてフォームをPOSTする。
func (e *testEnv) post(target string, form url.Values, token string) *httptest.ResponseRecorder {
	if form == nil {
		form = url.Values{}
	}
	form.Set(middleware.CSRFFormField, testCSRF)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRF})
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "token", Value: token})
	}
	req.RemoteAddr = "192.0.2.10:4321"
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// getWithCookieHeader は任意のCookieヘッダーでGETする。
func (e *testEnv) getWithCookieHeader(target, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Cookie", cookie)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// findCookie は同名のSet-Cookieのうち最後のものを返す。
func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			found = c
		}
	}
	return found
}
