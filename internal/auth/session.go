package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/finwise/internal/metrics"
	"github.com/hitoshi/finwise/internal/model"
	"github.com/hitoshi/finwise/internal/token"
)

// RefreshResult はセッション更新の結果。
type RefreshResult struct {
	AccessToken string
	Username    string
}

// Refresh はリフレッシュトークンを検証して新しいアクセストークンを発行する。
// リフレッシュトークン自体はローテーションしない。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		s.metrics.RecordAuthEvent(flowRefresh, metrics.OutcomeRejected)
		return nil, model.NewForbiddenError(MsgNoRefreshToken)
	}

	userID, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, token.ErrTokenExpired) {
			reason = "expired"
		}
		slog.Info("refresh token rejected", slog.String("reason", reason))
		s.metrics.RecordAuthEvent(flowRefresh, metrics.OutcomeRejected)
		return nil, model.NewForbiddenError(MsgInvalidRefresh)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, s.internal(flowRefresh, "Error refreshing token", err)
	}
	if user == nil {
		s.metrics.RecordAuthEvent(flowRefresh, metrics.OutcomeRejected)
		return nil, model.NewForbiddenError(MsgRefreshNoUser)
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, s.internal(flowRefresh, "Error refreshing token", err)
	}

	s.metrics.RecordAuthEvent(flowRefresh, metrics.OutcomeSuccess)
	return &RefreshResult{AccessToken: access, Username: user.Username}, nil
}

// CurrentUser はアクセストークンから特定したユーザーを返す。
// ユーザーが存在しない場合はUnauthorizedを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		slog.Error("failed to find current user",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInternalError("Error while processing your request")
	}
	if user == nil {
		return nil, model.NewUnauthorizedError("Unauthorized")
	}
	return user, nil
}
