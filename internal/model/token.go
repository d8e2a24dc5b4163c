package model

import "time"

// EmailVerificationToken はメールアドレス確認用のワンタイムトークンを表す。
// 1ユーザーにつき有効なトークンは最大1件。
type EmailVerificationToken struct {
	Token     string
	UserID    string
	ExpireAt  time.Time
	CreatedAt time.Time
}

// IsExpired は指定時刻の時点で期限切れかどうかを返す。
func (t *EmailVerificationToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpireAt)
}

// PasswordResetToken はパスワード再設定用のワンタイムトークンを表す。
// 使用済みになっても削除せず、状態確認のために保持する。
type PasswordResetToken struct {
	Token     string
	UserID    string
	ExpireAt  time.Time
	IsUsed    bool
	CreatedAt time.Time
}

// IsUsable は指定時刻の時点でパスワード再設定に使えるかどうかを返す。
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return !t.IsUsed && !now.After(t.ExpireAt)
}
