// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, profile, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeCSRFInvalid     = "CSRF_INVALID"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"
	ErrCodeBackendDown     = "BACKEND_UNAVAILABLE"
)

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and submit the form again.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please try again in a moment.",
	}
}

// NewProfileNotFoundError は公開プロフィールが存在しない場合のエラーを生成する。
func NewProfileNotFoundError(username string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("Profile not found: %s", username),
		Category: "profile",
		Action:   "Check the username in the address.",
	}
}

// NewBackendUnavailableError はバックエンドに到達できない場合のエラーを生成する。
func NewBackendUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeBackendDown,
		Message:  "Failed to reach server.",
		Category: "system",
		Action:   "Check your connection and try again.",
	}
}
