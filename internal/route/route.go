// Package route はリクエストパスの分類を提供する。
//
// 分類はエッジのルートガード、クライアント側のブートストラップ、
// 保護レイアウトゲート、アイデンティティストアのすべてから共有される。
// パス文字列と静的な予約語集合だけから決まる純粋関数であり、
// ネットワークや状態にはアクセスしない。
package route

import (
	"net/url"
	"strings"
)

// Class はパスの分類結果。
type Class int

const (
	// Protected は認証必須のページ（デフォルト）。
	Protected Class = iota
	// PublicStatic は静的アセット等。常に素通しする。
	PublicStatic
	// Root はトップページ "/"。
	Root
	// PublicProfile は予約語でない1セグメントのパス（/{username}）。
	PublicProfile
	// AuthOnly はログイン・登録など未認証ユーザー向けページ。
	AuthOnly
)

// String は分類名を返す。ログとメトリクスのラベルに使う。
func (c Class) String() string {
	switch c {
	case PublicStatic:
		return "public_static"
	case Root:
		return "root"
	case PublicProfile:
		return "public_profile"
	case AuthOnly:
		return "auth_only"
	default:
		return "protected"
	}
}

const (
	// LoginPath はログインページのパス。
	LoginPath = "/login"
	// LogoutPath はログアウトのフォーム送信先。
	LogoutPath = "/logout"
	// HomePath は認証済みユーザーのホーム（ダッシュボードルート）。
	HomePath = "/dashboard"
	// RedirectParam は元の遷移先を保持するクエリパラメータ名。
	RedirectParam = "redirect"
)

// staticPrefixes は前方一致で判定する静的パス。検証より前に短絡する。
var staticPrefixes = []string{
	"/static/",
	"/assets/",
	"/favicon.ico",
	"/robots.txt",
	"/sitemap.xml",
}

// authOnlyPaths は完全一致で判定する認証前ページ。
var authOnlyPaths = map[string]struct{}{
	"/login":           {},
	"/register":        {},
	"/forgot-password": {},
}

// reserved はユーザー名として解釈してはならない単一セグメント。
var reserved = map[string]struct{}{
	"login":           {},
	"register":        {},
	"forgot-password": {},
	"logout":          {},
	"dashboard":       {},
	"settings":        {},
	"account":         {},
	"api":             {},
	"static":          {},
	"assets":          {},
	"public":          {},
	"health":          {},
	"metrics":         {},
	"favicon.ico":     {},
	"robots.txt":      {},
	"sitemap.xml":     {},
}

// Classify はパスを分類する。
func Classify(path string) Class {
	if path == "" || path == "/" {
		return Root
	}

	for _, p := range staticPrefixes {
		if strings.HasPrefix(path, p) {
			return PublicStatic
		}
	}

	clean := path
	if len(clean) > 1 {
		clean = strings.TrimSuffix(clean, "/")
	}
	if _, ok := authOnlyPaths[clean]; ok {
		return AuthOnly
	}

	segs := Segments(path)
	if len(segs) == 0 {
		return Root
	}
	if len(segs) == 1 && !IsReserved(segs[0]) {
		return PublicProfile
	}

	return Protected
}

// Segments は空要素を除いたパスセグメントを返す。
func Segments(path string) []string {
	parts := strings.Split(path, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// IsReserved はセグメントが予約語かどうかを大文字小文字を無視して判定する。
func IsReserved(segment string) bool {
	_, ok := reserved[strings.ToLower(segment)]
	return ok
}

// IsProtected はパスが認証必須かどうかを返す。
func IsProtected(path string) bool {
	return Classify(path) == Protected
}

// IsLogout はパスがログアウトかどうかを返す。
func IsLogout(path string) bool {
	return strings.TrimSuffix(path, "/") == LogoutPath
}

// LoginRedirect は元のパスとクエリを redirect パラメータに詰めたログインURLを返す。
func LoginRedirect(pathAndQuery string) string {
	return LoginPath + "?" + RedirectParam + "=" + queryEscape(pathAndQuery)
}

// queryEscape はクエリ値をエスケープする。可読性のため "/" はそのまま残す。
func queryEscape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "%2F", "/")
}

// SafeRedirect はログイン後の遷移先を同一オリジンの絶対パスに限定する。
// 不正な値、認証前ページ、ログアウトへの遷移はHomePathに置き換える。
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") {
		return HomePath
	}
	// "//evil.example" や "/\\evil.example" はスキーム相対URLとして解釈されうる
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return HomePath
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return HomePath
	}
	if Classify(u.Path) == AuthOnly || IsLogout(u.Path) {
		return HomePath
	}
	return target
}
