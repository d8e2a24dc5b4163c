package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/finwise/internal/metrics"
	"github.com/hitoshi/finwise/internal/model"
	"github.com/hitoshi/finwise/internal/repository"
	"github.com/hitoshi/finwise/internal/security"
	"github.com/hitoshi/finwise/internal/token"
)

// MsgOAuthFailed はIdPとの認可コード交換に失敗した場合のメッセージ。
const MsgOAuthFailed = "Social sign-in failed. Please try again."

// ソーシャルログインのプロバイダー名。identitiesのproviderカラムとURLパスに使う。
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
// Emailはプロバイダーが確認済みのメールアドレスに限る。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// OAuthEnabled は指定プロバイダーのソーシャルログインが構成されているかを返す。
func (s *Service) OAuthEnabled(provider string) bool {
	_, ok := s.oauth[provider]
	return ok
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
// 構成されていないプロバイダーの場合は空文字列を返す。
func (s *Service) GetLoginURL(provider, state string) string {
	p, ok := s.oauth[provider]
	if !ok {
		return ""
	}
	return p.GetLoginURL(state)
}

// HandleOAuthCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// identityが未登録の場合、同じメールアドレスのユーザーがいれば紐付け、
// いなければパスワードなしの確認済みユーザーをidentityと同時に作成する。
func (s *Service) HandleOAuthCallback(ctx context.Context, provider, code string) (token.Pair, error) {
	const internalMsg = "Error while processing your request"

	p, ok := s.oauth[provider]
	if !ok {
		return token.Pair{}, s.internal(flowOAuth, internalMsg, fmt.Errorf("oauth provider %q is not configured", provider))
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	info, err := p.ExchangeCode(ctx, code)
	if err != nil {
		slog.Warn("oauth code exchange failed",
			slog.String("provider", provider),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordAuthEvent(flowOAuth, metrics.OutcomeRejected)
		return token.Pair{}, model.NewBadRequestError(MsgOAuthFailed)
	}
	info.Provider = provider

	// 2. identitiesで既存ユーザーを検索
	userID, err := s.resolveOAuthUser(ctx, info)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordAuthEvent(flowOAuth, metrics.OutcomeRejected)
			return token.Pair{}, apiErr
		}
		return token.Pair{}, s.internal(flowOAuth, internalMsg, err)
	}

	// 3. セッショントークンを発行
	pair, err := s.tokens.IssueSessionTokens(userID)
	if err != nil {
		return token.Pair{}, s.internal(flowOAuth, internalMsg, err)
	}

	s.metrics.RecordAuthEvent(flowOAuth, metrics.OutcomeSuccess)
	return pair, nil
}

func (s *Service) resolveOAuthUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identities.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	email := model.NormalizeEmail(info.Email)
	if email == "" {
		return "", model.NewBadRequestError(MsgOAuthFailed)
	}

	now := s.config.Now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		// 確認待ちのアカウントは第三者がメールアドレスを先取りしている可能性があるため、
		// IdPが確認したメールアドレスの所有者のアカウントとして取り込み、パスワードを破棄する
		newIdentity.UserID = existing.ID
		if err := s.users.LinkIdentity(ctx, newIdentity, oauthUsername(info), now); err != nil {
			return "", fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", info.Provider),
			slog.Bool("claimed_pending", !existing.IsVerified()),
		)
		return existing.ID, nil
	}

	// IdPがメールアドレスを確認済みのため、ソーシャルログインのユーザーは確認済みで作成する
	verifiedAt := now
	newUser := &model.User{
		ID:              uuid.New().String(),
		Email:           email,
		Username:        oauthUsername(info),
		EmailVerifiedAt: &verifiedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	newIdentity.UserID = newUser.ID

	if err := s.users.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return "", model.NewConflictError(MsgUserExists)
		}
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("email", email),
		slog.String("provider", info.Provider),
	)
	return newUser.ID, nil
}

// oauthUsername はIdPの表示名、なければメールアドレスのローカル部をユーザー名にする。
func oauthUsername(info *OAuthUserInfo) string {
	if name := security.PlainText(info.Name); name != "" {
		return name
	}
	local, _, _ := strings.Cut(info.Email, "@")
	return local
}
