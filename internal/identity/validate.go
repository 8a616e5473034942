package identity

import (
	"regexp"
	"unicode/utf8"

	"github.com/teukusulthan/instacard/internal/backend"
)

var (
	emailPattern            = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	loginUsernamePattern    = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,30}$`)
	registerUsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// ValidateLogin はログイン入力を検証する。
// 識別子はメールアドレスかユーザー名、パスワードは8〜128文字。
func ValidateLogin(p backend.LoginPayload) error {
	if p.EmailOrUsername == "" {
		return &ValidationError{Field: "emailOrUsername", Message: "Email or username is required"}
	}
	if !emailPattern.MatchString(p.EmailOrUsername) && !loginUsernamePattern.MatchString(p.EmailOrUsername) {
		return &ValidationError{Field: "emailOrUsername", Message: "Enter a valid email or a username"}
	}
	return validatePassword(p.Password)
}

// RegisterForm は新規登録フォームの入力。
type RegisterForm struct {
	Name            string
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Payload はバックエンドに送る形に変換する。
func (f RegisterForm) Payload() backend.RegisterPayload {
	return backend.RegisterPayload{
		Name:     f.Name,
		Username: f.Username,
		Email:    f.Email,
		Password: f.Password,
	}
}

// ValidateRegister は新規登録入力を検証し、最初に見つかったエラーを返す。
func ValidateRegister(f RegisterForm) error {
	if utf8.RuneCountInString(f.Name) < 3 {
		return &ValidationError{Field: "name", Message: "Full name is required"}
	}

	n := utf8.RuneCountInString(f.Username)
	switch {
	case n < 3:
		return &ValidationError{Field: "username", Message: "Username must be at least 3 characters"}
	case n > 20:
		return &ValidationError{Field: "username", Message: "Username must be at most 20 characters"}
	case !registerUsernamePattern.MatchString(f.Username):
		return &ValidationError{Field: "username", Message: "Only letters, numbers, and underscore"}
	}

	if f.Email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if !emailPattern.MatchString(f.Email) {
		return &ValidationError{Field: "email", Message: "Invalid email format"}
	}

	if err := validatePassword(f.Password); err != nil {
		return err
	}
	if f.ConfirmPassword == "" {
		return &ValidationError{Field: "confirmPassword", Message: "Please confirm your password"}
	}
	if f.Password != f.ConfirmPassword {
		return &ValidationError{Field: "confirmPassword", Message: "Passwords do not match"}
	}
	return nil
}

func validatePassword(pw string) error {
	n := utf8.RuneCountInString(pw)
	if n < minPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 8 characters long"}
	}
	if n > maxPasswordLength {
		return &ValidationError{Field: "password", Message: "Password is too long"}
	}
	return nil
}
