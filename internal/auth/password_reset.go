package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/finwise/internal/metrics"
	"github.com/hitoshi/finwise/internal/model"
	"github.com/hitoshi/finwise/internal/password"
	"github.com/hitoshi/finwise/internal/repository"
	"github.com/hitoshi/finwise/internal/throttle"
)

// MessageResult はメッセージのみを返すフローの結果。
type MessageResult struct {
	Message string
}

// RequestPasswordReset はパスワード再設定トークンを発行してメールで送信する。
// 未登録のメールアドレスでもエラーにせずメッセージを返す。
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*MessageResult, error) {
	const internalMsg = "An Unknown error occurred during password reset"
	email = model.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.internal(flowResetRequest, internalMsg, err)
	}
	if user == nil {
		slog.Debug("password reset requested for unknown email", slog.String("email", email))
		s.metrics.RecordAuthEvent(flowResetRequest, metrics.OutcomeRejected)
		return &MessageResult{Message: MsgEmailNotFound}, nil
	}

	if !s.allow(ctx, throttle.ActionPasswordReset, email, flowResetRequest) {
		return nil, model.NewTooManyRequestsError()
	}

	tok, err := s.config.NewToken()
	if err != nil {
		return nil, s.internal(flowResetRequest, internalMsg, fmt.Errorf("failed to generate reset token: %w", err))
	}

	now := s.config.Now()
	if err := s.resets.ReplaceForUser(ctx, &model.PasswordResetToken{
		Token:     tok,
		UserID:    user.ID,
		ExpireAt:  now.Add(s.config.ResetTokenTTL),
		IsUsed:    false,
		CreatedAt: now,
	}); err != nil {
		return nil, s.internal(flowResetRequest, internalMsg, fmt.Errorf("failed to store reset token: %w", err))
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, tok); err != nil {
		s.metrics.RecordEmailFailure("password_reset")
		return nil, s.internal(flowResetRequest, internalMsg, fmt.Errorf("failed to send reset email: %w", err))
	}
	s.metrics.RecordEmailSent("password_reset")

	slog.Info("password reset requested", slog.String("user_id", user.ID))
	s.metrics.RecordAuthEvent(flowResetRequest, metrics.OutcomeSuccess)

	return &MessageResult{Message: MsgResetSent}, nil
}

// ResetTokenStatus はパスワード再設定トークンの状態。
type ResetTokenStatus struct {
	Code string
}

// CheckResetToken はパスワード再設定トークンが使用可能かを返す。読み取りのみ。
func (s *Service) CheckResetToken(ctx context.Context, tok string) (*ResetTokenStatus, error) {
	rt, err := s.resets.FindByToken(ctx, tok)
	if err != nil {
		return nil, s.internal(flowResetCheck, "An Unknown error occurred during token verification", err)
	}

	if rt == nil || !rt.IsUsable(s.config.Now()) {
		s.metrics.RecordAuthEvent(flowResetCheck, metrics.OutcomeRejected)
		return &ResetTokenStatus{Code: CodeInvalidToken}, nil
	}

	s.metrics.RecordAuthEvent(flowResetCheck, metrics.OutcomeSuccess)
	return &ResetTokenStatus{Code: CodeValidToken}, nil
}

// ResetPasswordInput はパスワード再設定完了の入力。
type ResetPasswordInput struct {
	Token           string
	Password        string
	ConfirmPassword string
}

// ResetPasswordResult はパスワード再設定完了の結果。
type ResetPasswordResult struct {
	Code string
}

// ResetPassword はトークンを消費してパスワードを更新する。
// 使用済み・期限切れのトークンは拒否し、同じトークンで2回目の完了はできない。
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) (*ResetPasswordResult, error) {
	const internalMsg = "An Unknown error occurred during password reset."

	rt, err := s.resets.FindByToken(ctx, in.Token)
	if err != nil {
		return nil, s.internal(flowResetComplete, internalMsg, err)
	}
	if rt == nil {
		s.metrics.RecordAuthEvent(flowResetComplete, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgInvalidReset)
	}

	if in.Password != in.ConfirmPassword {
		s.metrics.RecordAuthEvent(flowResetComplete, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgPasswordMismatch)
	}

	if !rt.IsUsable(s.config.Now()) {
		s.metrics.RecordAuthEvent(flowResetComplete, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgInvalidReset)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			s.metrics.RecordAuthEvent(flowResetComplete, metrics.OutcomeRejected)
			return nil, model.NewBadRequestError(MsgPasswordTooLong)
		}
		return nil, s.internal(flowResetComplete, internalMsg, err)
	}

	if err := s.resets.CompleteReset(ctx, rt.Token, rt.UserID, hash); err != nil {
		if errors.Is(err, repository.ErrTokenUsed) {
			s.metrics.RecordAuthEvent(flowResetComplete, metrics.OutcomeRejected)
			return nil, model.NewBadRequestError(MsgInvalidReset)
		}
		return nil, s.internal(flowResetComplete, internalMsg, err)
	}

	slog.Info("password reset completed", slog.String("user_id", rt.UserID))
	s.metrics.RecordAuthEvent(flowResetComplete, metrics.OutcomeSuccess)

	return &ResetPasswordResult{Code: CodeResetSuccessful}, nil
}
