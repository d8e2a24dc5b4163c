package handler

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/finwise/internal/model"
	"github.com/hitoshi/finwise/internal/password"
	"github.com/hitoshi/finwise/internal/security"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

// signupRequest はアカウント登録リクエストのボディ。
type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// signinRequest はサインインリクエストのボディ。
type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// emailRequest はパスワード再設定要求のボディ。
type emailRequest struct {
	Email string `json:"email"`
}

// resetPasswordRequest はパスワード再設定完了のボディ。
type resetPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// validator はフィールド単位の検証エラーを収集する。
type validator struct {
	errs []model.FieldError
}

func (v *validator) email(field, value string) {
	value = strings.TrimSpace(value)
	addr, err := mail.ParseAddress(value)
	// 表示名付きの形式 ("Name <a@b>") は受け付けない
	if err != nil || addr.Address != value {
		v.add(field, "Invalid email address")
	}
}

func (v *validator) minLength(field, value string, n int, message string) {
	if utf8.RuneCountInString(value) < n {
		v.add(field, message)
	}
}

// maxBytes はバイト数の上限を検証する。bcryptの入力上限に合わせるため文字数ではなくバイト数で数える。
func (v *validator) maxBytes(field, value string, n int, message string) {
	if len(value) > n {
		v.add(field, message)
	}
}

func (v *validator) add(field, message string) {
	v.errs = append(v.errs, model.FieldError{Field: field, Message: message})
}

// err は検証エラーがあればValidationエラーを返す。
func (v *validator) err() *model.APIError {
	if len(v.errs) == 0 {
		return nil
	}
	return model.NewValidationError(v.errs)
}

// normalize はユーザー名からHTMLタグを除去する。長さの検証は除去後の値で行う。
func (req *signupRequest) normalize() {
	req.Username = security.PlainText(req.Username)
}

func (req signupRequest) validate() *model.APIError {
	var v validator
	v.minLength("username", req.Username, minUsernameLength, "Username must be at least 3 characters long")
	v.email("email", req.Email)
	v.minLength("password", req.Password, minPasswordLength, "Password must be at least 6 characters long")
	v.maxBytes("password", req.Password, password.MaxBytes, "Password must be at most 72 bytes long")
	return v.err()
}

func (req signinRequest) validate() *model.APIError {
	var v validator
	v.email("email", req.Email)
	v.minLength("password", req.Password, minPasswordLength, "Password must be at least 6 characters long")
	return v.err()
}

func (req emailRequest) validate() *model.APIError {
	var v validator
	v.email("email", req.Email)
	return v.err()
}

// validate は長さのみを検証する。パスワードの一致確認はトークン確認の後に行う。
func (req resetPasswordRequest) validate() *model.APIError {
	var v validator
	v.minLength("password", req.Password, minPasswordLength, "Password must be at least 6 characters long")
	v.minLength("confirmPassword", req.ConfirmPassword, minPasswordLength, "Confirm password must be at least 6 characters long")
	v.maxBytes("password", req.Password, password.MaxBytes, "Password must be at most 72 bytes long")
	return v.err()
}
