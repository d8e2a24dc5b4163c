package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/finwise/internal/model"
)

// PostgresVerificationTokenRepo はPostgreSQLを使用したメール確認トークンリポジトリ。
type PostgresVerificationTokenRepo struct {
	db *sql.DB
}

// NewPostgresVerificationTokenRepo はPostgresVerificationTokenRepoを生成する。
func NewPostgresVerificationTokenRepo(db *sql.DB) *PostgresVerificationTokenRepo {
	return &PostgresVerificationTokenRepo{db: db}
}

// FindByToken はトークン値で検索する。見つからない場合はnilを返す。
func (r *PostgresVerificationTokenRepo) FindByToken(ctx context.Context, token string) (*model.EmailVerificationToken, error) {
	t := &model.EmailVerificationToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, expire_at, created_at
		 FROM email_verification_tokens
		 WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.UserID, &t.ExpireAt, &t.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find verification token: %w", err)
	}

	return t, nil
}

// ReplaceForUser はユーザーのトークンを新しい値で置き換える。
// user_idの一意制約に対するupsertの1文で行うため、並行発行は後勝ちとなり一意制約違反にならない。
func (r *PostgresVerificationTokenRepo) ReplaceForUser(ctx context.Context, token *model.EmailVerificationToken) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO email_verification_tokens (token, user_id, expire_at, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET token = EXCLUDED.token, expire_at = EXCLUDED.expire_at, created_at = EXCLUDED.created_at`,
		token.Token, token.UserID, token.ExpireAt, token.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert verification token: %w", err)
	}
	return nil
}

// DeleteExpiredPending は確認待ちユーザーの期限切れトークンを削除する。
// 確認済みユーザーのトークンは再クリック時にALREADY_VERIFIEDを返すために残す。
func (r *PostgresVerificationTokenRepo) DeleteExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_verification_tokens t
		 USING users u
		 WHERE t.user_id = u.id
		   AND u.email_verified_at IS NULL
		   AND t.expire_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ VerificationTokenRepository = (*PostgresVerificationTokenRepo)(nil)
