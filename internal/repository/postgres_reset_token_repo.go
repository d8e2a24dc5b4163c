package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/finwise/internal/model"
)

// PostgresResetTokenRepo はPostgreSQLを使用したパスワード再設定トークンリポジトリ。
type PostgresResetTokenRepo struct {
	db *sql.DB
}

// NewPostgresResetTokenRepo はPostgresResetTokenRepoを生成する。
func NewPostgresResetTokenRepo(db *sql.DB) *PostgresResetTokenRepo {
	return &PostgresResetTokenRepo{db: db}
}

// FindByToken はトークン値で検索する。見つからない場合はnilを返す。
// 使用済み・期限切れのトークンもそのまま返す。
func (r *PostgresResetTokenRepo) FindByToken(ctx context.Context, token string) (*model.PasswordResetToken, error) {
	t := &model.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, expire_at, is_used, created_at
		 FROM password_reset_tokens
		 WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.UserID, &t.ExpireAt, &t.IsUsed, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reset token: %w", err)
	}

	return t, nil
}

// ReplaceForUser はユーザーのトークンを新しい値で置き換える。
// 使用済みフラグも含めて行ごと上書きする。並行発行は後勝ちとなる。
func (r *PostgresResetTokenRepo) ReplaceForUser(ctx context.Context, token *model.PasswordResetToken) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (token, user_id, expire_at, is_used, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET token = EXCLUDED.token, expire_at = EXCLUDED.expire_at,
		     is_used = EXCLUDED.is_used, created_at = EXCLUDED.created_at`,
		token.Token, token.UserID, token.ExpireAt, token.IsUsed, token.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert reset token: %w", err)
	}
	return nil
}

// CompleteReset はトークンを使用済みにし、ユーザーのパスワードハッシュを更新する。
// is_used = false の条件付き更新により、同一トークンでの2回目の完了はErrTokenUsedになる。
func (r *PostgresResetTokenRepo) CompleteReset(ctx context.Context, token, userID, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE password_reset_tokens SET is_used = true
		 WHERE token = $1 AND user_id = $2 AND is_used = false`,
		token, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reset token used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrTokenUsed
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		userID, passwordHash, time.Now(),
	); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ResetTokenRepository = (*PostgresResetTokenRepo)(nil)
