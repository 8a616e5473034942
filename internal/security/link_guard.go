// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidLinkURL はプロフィールに載せられないURLであることを示す。
var ErrInvalidLinkURL = errors.New("invalid link url")

// allowedSchemes はプロフィールリンクに許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は公開プロフィールに載せてはならないネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（メタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// NormalizeLinkURL はユーザー入力のURLを正規化する。
// スキームがない場合は https:// を補う。
func NormalizeLinkURL(raw string) string {
	v := strings.TrimSpace(raw)
	if v == "" {
		return ""
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return v
	}
	if strings.Contains(v, "://") {
		return v
	}
	return "https://" + v
}

// ValidateLinkURL はプロフィールリンクのURLを静的に検証する。
// DNS解決は行わない。エッジはリンク先へアクセスしないため、
// 表示して問題ないURLかどうかだけを判定する。
func ValidateLinkURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidLinkURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLinkURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("%w: disallowed scheme %q", ErrInvalidLinkURL, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidLinkURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: blocked IP address %s", ErrInvalidLinkURL, ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("%w: blocked host %s", ErrInvalidLinkURL, host)
	}

	return nil
}

// LinkDomain はリンクの表示用ドメインを返す。先頭の www. は取り除く。
func LinkDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		v := strings.TrimPrefix(rawURL, "https://")
		return strings.TrimPrefix(v, "http://")
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
