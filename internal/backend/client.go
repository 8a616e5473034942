// Package backend はInstacard REST APIのクライアントを提供する。
//
// すべてのエンドポイントは {status, message, data, meta?} のエンベロープを返す。
// このパッケージはエンベロープの展開と、バックエンドのフィールド名の
// 揺れを正規のmodel型へ変換する境界を担う。
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teukusulthan/instacard/internal/model"
)

const (
	// maxResponseSize はレスポンスボディの読み取り上限（1MiB）。
	maxResponseSize = 1 << 20
	userAgent       = "Instacard-Edge/1.0"
)

// ErrUnauthorized はバックエンドが401を返したことを示す。
// *APIError はステータス401のときこのエラーとしてerrors.Isに一致する。
var ErrUnauthorized = errors.New("unauthorized")

// ErrMalformedResponse はレスポンスが期待する形式でないことを示す。
var ErrMalformedResponse = errors.New("malformed backend response")

// ErrMissingID は展開したペイロードにIDが含まれないことを示す。
var ErrMissingID = errors.New("identity payload has no id")

// ErrNotFound はバックエンドが404を返したことを示す。
var ErrNotFound = errors.New("not found")

// TransportError はバックエンドに到達できなかったことを表す。
type TransportError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *TransportError) Unwrap() error { return e.Err }

// APIError は2xx以外のレスポンスを表す。
// Messageはエラーエンベロープのmessage、なければステータス文言。
type APIError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Is はステータスに応じてErrUnauthorized / ErrNotFoundと一致させる。
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Envelope はバックエンドの統一レスポンス形式。
type Envelope[T any] struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    T               `json:"data"`
	Meta    *model.PageMeta `json:"meta,omitempty"`
}

// Client はバックエンドAPIのクライアント。
// 状態を持たないため複数リクエストから並行に利用できる。
// Cookieを保持する必要がある呼び出しは NewSession で得た Session を使う。
type Client struct {
	httpClient *http.Client
	base       *url.URL
	logger     *slog.Logger
}

// NewClient はClientを生成する。baseURLは絶対URL（例: http://backend:4000/api/v1）。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend base URL must be absolute: %q", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		base:       u,
		logger:     logger,
	}, nil
}

// request は1回の呼び出しのパラメータ。
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	cookie string // 空でなければCookieヘッダーとして送る
}

// response はデコード前のレスポンス。
type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

// do はHTTPリクエストを送り、ステータスに応じたエラーへ変換する。
// 2xxの場合のみ err == nil となる。
func (c *Client) do(ctx context.Context, hc *http.Client, req request) (*response, error) {
	u := c.base.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.cookie != "" {
		httpReq.Header.Set("Cookie", req.cookie)
	}

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: req.method + " " + req.path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: "read " + req.path, Err: err}
	}

	out := &response{
		status:  resp.StatusCode,
		body:    raw,
		cookies: resp.Cookies(),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
		}
	}
	return out, nil
}

// errorMessage はエラーエンベロープからmessageを取り出す。
func errorMessage(raw []byte, status int) string {
	var env struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Message != "" {
		return env.Message
	}
	return http.StatusText(status)
}

// decode は2xxレスポンスのエンベロープをデコードする。
func decode[T any](resp *response) (*Envelope[T], error) {
	var env Envelope[T]
	if len(bytes.TrimSpace(resp.body)) == 0 {
		return &env, nil
	}
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &env, nil
}
