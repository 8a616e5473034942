// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はルートガードが検証したユーザーIDのキー。
	userIDContextKey = contextKey("user_id")
	// requestIDContextKey はリクエストIDのキー。
	requestIDContextKey = contextKey("request_id")
	// csrfTokenContextKey はフォームに埋め込むCSRFトークンのキー。
	csrfTokenContextKey = contextKey("csrf_token")
)

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ルートガードが保護ページで検証に成功したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// RequestIDFromContext はリクエストIDを返す。未設定なら空文字。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// ContextWithRequestID はコンテキストにリクエストIDを注入する。
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// CSRFTokenFromContext はCSRFミドルウェアが発行・確認したトークンを返す。
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenContextKey).(string)
	return token
}

// userIDSinkContextKey は内側のミドルウェアが検証したユーザーIDを
// ロギングミドルウェアへ戻すための書き込み先のキー。
var userIDSinkContextKey = contextKey("user_id_sink")

func withUserIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, userIDSinkContextKey, sink)
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// ロギングミドルウェアの内側で呼ばれた場合はログにも反映される。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if sink, ok := ctx.Value(userIDSinkContextKey).(*string); ok && sink != nil {
		*sink = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
