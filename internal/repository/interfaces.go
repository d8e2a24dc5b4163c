// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/finwise/internal/model"
)

var (
	// ErrDuplicateEmail は同一メールアドレスのユーザーが既に存在する場合に返る。
	// 並行登録の競合はストアの一意性制約で裁定され、敗者はこのエラーを受け取る。
	ErrDuplicateEmail = errors.New("repository: duplicate email")

	// ErrTokenUsed はパスワード再設定トークンが既に使用済みの場合に返る。
	ErrTokenUsed = errors.New("repository: reset token already used")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// LinkIdentity はidentityを既存ユーザーに紐付ける。
	// ユーザーが確認待ちの場合は同一トランザクションで確認済みにし、
	// パスワードハッシュとメール確認トークンを破棄してユーザー名をusernameに置き換える。
	// 確認済みユーザーはidentityの追加のみ行う。
	LinkIdentity(ctx context.Context, identity *model.Identity, username string, verifiedAt time.Time) error

	// MarkEmailVerified はメール確認日時を設定する。
	// 既に設定済みの場合は上書きしない（単調性）。
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。
	Create(ctx context.Context, identity *model.Identity) error
}

// VerificationTokenRepository はメール確認トークンの永続化インターフェース。
type VerificationTokenRepository interface {
	// FindByToken はトークン値で検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.EmailVerificationToken, error)

	// ReplaceForUser はユーザーのトークンを新しい値で置き換える。
	// ユーザーごとに1件のみ保持し、並行発行は後勝ちとなる。
	ReplaceForUser(ctx context.Context, token *model.EmailVerificationToken) error

	// DeleteExpiredPending は確認待ちユーザーの期限切れトークンを削除し、削除件数を返す。
	DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenRepository はパスワード再設定トークンの永続化インターフェース。
type ResetTokenRepository interface {
	// FindByToken はトークン値で検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.PasswordResetToken, error)

	// ReplaceForUser はユーザーのトークンを新しい値で置き換える。
	// ユーザーごとに1件のみ保持し、並行発行は後勝ちとなる。
	ReplaceForUser(ctx context.Context, token *model.PasswordResetToken) error

	// CompleteReset はユーザーのパスワードハッシュを更新し、トークンを使用済みにする。
	// 両方の更新は同一トランザクションで行い、使用済みトークンの場合はErrTokenUsedを返す。
	CompleteReset(ctx context.Context, token, userID, passwordHash string) error
}
