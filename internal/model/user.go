// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// PasswordHashがnilのユーザーはソーシャルログイン専用アカウント。
// EmailVerifiedAtがnilのユーザーはメール確認待ち状態。
type User struct {
	ID              string
	Email           string
	Username        string
	PasswordHash    *string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsVerified はメールアドレスが確認済みかどうかを返す。
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// HasPassword はパスワードログインが可能なアカウントかどうかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// NormalizeEmail はメールアドレスを比較用に正規化する。
// メールアドレスの一意性は大文字小文字を区別せずに判定する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
