package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"

	"github.com/teukusulthan/instacard/internal/model"
)

// Session は1人の利用者の資格情報（Cookie）を保持するバックエンド接続。
// ログイン応答で受け取ったCookieはjarに蓄積され、以降の呼び出しに使われる。
type Session struct {
	client *Client
	http   *http.Client
	jar    http.CookieJar
}

// NewSession はcredential（受信したCookieヘッダー）をjarに取り込んだSessionを返す。
// credentialが空の場合は未認証のSessionになる。
func (c *Client) NewSession(credential string) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if credential != "" {
		// 不正なペアだけを読み飛ばし、残りのCookieは引き継ぐ
		cookies := (&http.Request{Header: http.Header{"Cookie": {credential}}}).Cookies()
		if len(cookies) == 0 {
			c.logger.Debug("no usable cookie in credential")
		}
		for _, ck := range cookies {
			ck.Path = "/"
		}
		jar.SetCookies(c.base, cookies)
	}

	hc := *c.httpClient
	hc.Jar = jar

	return &Session{
		client: c,
		http:   &hc,
		jar:    jar,
	}, nil
}

// HasCredential はjarに送信可能なCookieがあるかどうかを返す。
func (s *Session) HasCredential() bool {
	return len(s.jar.Cookies(s.client.base.JoinPath("/"))) > 0
}

// LoginPayload はログインフォームの入力。
type LoginPayload struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

// RegisterPayload は新規登録フォームの入力。
type RegisterPayload struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login は資格情報をセッションCookieと交換する。
// 戻り値のCookieはブラウザへ転送するためのもの。
func (s *Session) Login(ctx context.Context, p LoginPayload) ([]*http.Cookie, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   p,
	})
	if err != nil {
		return nil, err
	}
	return resp.cookies, nil
}

// Logout はセッションCookieを無効化する。
func (s *Session) Logout(ctx context.Context) ([]*http.Cookie, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodPost,
		path:   "/auth/logout",
		body:   struct{}{},
	})
	if resp != nil {
		return resp.cookies, err
	}
	return nil, err
}

// Register は新規ユーザーを登録する。
func (s *Session) Register(ctx context.Context, p RegisterPayload) error {
	_, err := s.client.do(ctx, s.http, request{
		method: http.MethodPost,
		path:   "/auth/register",
		body:   p,
	})
	return err
}

// Me はログイン中ユーザーのプロフィールを取得する。
// 展開したペイロードにIDがない場合はErrMissingIDを返す。
func (s *Session) Me(ctx context.Context) (*model.Identity, error) {
	resp, err := s.client.do(ctx, s.http, request{
		method: http.MethodGet,
		path:   "/user/me",
	})
	if err != nil {
		return nil, err
	}
	env, err := decode[rawIdentity](resp)
	if err != nil {
		return nil, err
	}
	return env.Data.normalize()
}
