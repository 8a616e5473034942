package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	// APIBaseURL はブラウザから見たAPIのベース。相対パスの場合はエッジがBackendURLへプロキシする。
	APIBaseURL     string
	BackendURL     string
	BackendTimeout time.Duration

	// Images
	ImageBaseURL string

	// Session
	SessionCookieName string
	VerifyTimeout     time.Duration
	IdentityThrottle  time.Duration

	// Rate Limit
	RateLimitLogin int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、またはURLが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIBaseURL = strings.TrimSuffix(getEnvString("API_BASE_URL", "/api/v1"), "/")
	cfg.BackendURL = strings.TrimSuffix(os.Getenv("BACKEND_URL"), "/")

	apiBase, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}

	if !apiBase.IsAbs() {
		if !strings.HasPrefix(cfg.APIBaseURL, "/") {
			return nil, fmt.Errorf("API_BASE_URL must be an absolute URL or start with '/': %q", cfg.APIBaseURL)
		}
		if cfg.BackendURL == "" {
			return nil, fmt.Errorf("required environment variables are not set: %v", []string{"BACKEND_URL"})
		}
	}
	if cfg.BackendURL != "" {
		if err := requireHTTPURL("BACKEND_URL", cfg.BackendURL); err != nil {
			return nil, err
		}
	}
	if apiBase.IsAbs() {
		if err := requireHTTPURL("API_BASE_URL", cfg.APIBaseURL); err != nil {
			return nil, err
		}
	}

	// Optional fields with defaults
	cfg.BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 10*time.Second)
	cfg.ImageBaseURL = strings.TrimSuffix(getEnvString("IMAGE_BASE_URL", cfg.APIBaseURL), "/")
	cfg.SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "token")
	cfg.VerifyTimeout = getEnvDuration("VERIFY_TIMEOUT", 5*time.Second)
	cfg.IdentityThrottle = getEnvDuration("IDENTITY_THROTTLE", 3*time.Second)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS")

	return cfg, nil
}

// ProxiesAPI はエッジがAPIをリバースプロキシするかどうかを返す。
// APIBaseURLが相対パスの場合にtrue。
func (c *Config) ProxiesAPI() bool {
	return strings.HasPrefix(c.APIBaseURL, "/")
}

// BackendAPIURL はサーバー側からバックエンドAPIを呼ぶときのベースURLを返す。
func (c *Config) BackendAPIURL() string {
	if c.ProxiesAPI() {
		return c.BackendURL + c.APIBaseURL
	}
	return c.APIBaseURL
}

func requireHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid %s: must be an http(s) URL: %q", key, raw)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
