package identity

import (
	"errors"
	"fmt"
)

// 内部でのみ扱う拒否理由。利用者には表示しない。
var (
	// ErrThrottled はスロットル期間内の再取得であることを示す。
	ErrThrottled = errors.New("identity fetch throttled")
	// ErrSkippedOnAuthPage は認証前ページでの取得を見送ったことを示す。
	ErrSkippedOnAuthPage = errors.New("identity fetch skipped on auth page")
	// ErrSuperseded は実行中にログイン・ログアウト・リセットが起き、結果を破棄したことを示す。
	ErrSuperseded = errors.New("identity operation superseded")
)

// ValidationError は通信前の入力検証エラー。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoginError はログイン失敗を表す。Messageはフォームにそのまま表示できる文言。
// 元のエラー（*backend.APIError や *backend.TransportError）はUnwrapで辿れる。
type LoginError struct {
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *LoginError) Error() string {
	return e.Message
}

// Unwrap は元のエラーを返す。
func (e *LoginError) Unwrap() error { return e.Err }
