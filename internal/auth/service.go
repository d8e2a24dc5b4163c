// Package auth はアカウント登録、メール確認、サインイン、パスワード再設定、
// セッション更新の各フローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/finwise/internal/mailer"
	"github.com/hitoshi/finwise/internal/metrics"
	"github.com/hitoshi/finwise/internal/model"
	"github.com/hitoshi/finwise/internal/password"
	"github.com/hitoshi/finwise/internal/repository"
	"github.com/hitoshi/finwise/internal/throttle"
	"github.com/hitoshi/finwise/internal/token"
)

// レスポンスに含めるメッセージとコード。
const (
	MsgVerificationSent  = "Sent verification email"
	MsgUserExists        = "User already exists with this email"
	MsgUserNotFound      = "User with email not found"
	MsgInvalidCredential = "Invalid credentials"
	MsgVerifyFailed      = "We couldn't verify your email. The link may have expired or is invalid."
	MsgAlreadyVerified   = "Email Already Verified"
	MsgVerified          = "Email Verified Successfully"
	MsgEmailNotFound     = "Email not registered"
	MsgResetSent         = "Sent Password reset link to registered email."
	MsgInvalidReset      = "Invalid reset token"
	MsgPasswordMismatch  = "Password does not match"
	MsgPasswordTooLong   = "Password must be at most 72 bytes long"
	MsgNoRefreshToken    = "No refresh token provided"
	MsgInvalidRefresh    = "Invalid or expired refresh token"
	MsgRefreshNoUser     = "User not found"

	CodeVerified        = "VERIFIED"
	CodeAlreadyVerified = "ALREADY_VERIFIED"
	CodeValidToken      = "VALID_TOKEN"
	CodeInvalidToken    = "INVALID_TOKEN"
	CodeResetSuccessful = "RESET_SUCCESSFUL"
)

// メトリクスのフロー名。
const (
	flowSignup        = "signup"
	flowSignin        = "signin"
	flowVerifyEmail   = "verify_email"
	flowResetRequest  = "reset_request"
	flowResetCheck    = "reset_check"
	flowResetComplete = "reset_complete"
	flowRefresh       = "refresh"
	flowOAuth         = "oauth"
)

// TokenIssuer はセッショントークンの発行と検証のインターフェース。
type TokenIssuer interface {
	IssueSessionTokens(userID string) (token.Pair, error)
	IssueAccessToken(userID string) (string, error)
	VerifyRefreshToken(tokenString string) (string, error)
}

// Throttler はメール送信を伴う操作の回数制限のインターフェース。
type Throttler interface {
	Allow(ctx context.Context, action, email string) bool
}

// Deps は認証サービスが利用するコラボレータ。
// ThrottleとMetricsはnil、OAuthは空の場合に該当機能を無効とする。
type Deps struct {
	Users              repository.UserRepository
	Identities         repository.IdentityRepository
	VerificationTokens repository.VerificationTokenRepository
	ResetTokens        repository.ResetTokenRepository
	Hasher             password.Hasher
	Tokens             TokenIssuer
	Mailer             mailer.Sender
	Throttle           Throttler
	Metrics            metrics.MetricsCollector
	OAuth              []OAuthProvider
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	VerificationTokenTTL time.Duration
	ResetTokenTTL        time.Duration

	// Now はテスト用にオーバーライド可能な時計。nilの場合はtime.Now。
	Now func() time.Time
	// NewToken は不透明トークンの生成関数。nilの場合はtoken.NewOpaque。
	NewToken func() (string, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users         repository.UserRepository
	identities    repository.IdentityRepository
	verifications repository.VerificationTokenRepository
	resets        repository.ResetTokenRepository
	hasher        password.Hasher
	tokens        TokenIssuer
	mailer        mailer.Sender
	throttle      Throttler
	metrics       metrics.MetricsCollector
	oauth         map[string]OAuthProvider
	config        ServiceConfig
}

// NewService はServiceを生成する。
func NewService(deps Deps, config ServiceConfig) *Service {
	if config.VerificationTokenTTL <= 0 {
		config.VerificationTokenTTL = 24 * time.Hour
	}
	if config.ResetTokenTTL <= 0 {
		config.ResetTokenTTL = 24 * time.Hour
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.NewToken == nil {
		config.NewToken = token.NewOpaque
	}

	providers := make(map[string]OAuthProvider, len(deps.OAuth))
	for _, p := range deps.OAuth {
		if p != nil {
			providers[p.Name()] = p
		}
	}

	m := deps.Metrics
	if m == nil {
		m = metrics.Nop{}
	}

	return &Service{
		users:         deps.Users,
		identities:    deps.Identities,
		verifications: deps.VerificationTokens,
		resets:        deps.ResetTokens,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		mailer:        deps.Mailer,
		throttle:      deps.Throttle,
		metrics:       m,
		oauth:         providers,
		config:        config,
	}
}

// RegisterInput はアカウント登録の入力。
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// RegisterResult はアカウント登録の結果。
type RegisterResult struct {
	Message    string
	IsVerified bool
}

// Register はメール確認待ちのアカウントを作成し、確認メールを送信する。
// メール送信に失敗した場合もユーザーとトークンは残る。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	const internalMsg = "Error while processing your request"
	email := model.NormalizeEmail(in.Email)

	if !s.allow(ctx, throttle.ActionSignup, email, flowSignup) {
		return nil, model.NewTooManyRequestsError()
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.internal(flowSignup, internalMsg, err)
	}
	if existing != nil {
		s.metrics.RecordAuthEvent(flowSignup, metrics.OutcomeRejected)
		return nil, model.NewConflictError(MsgUserExists)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			s.metrics.RecordAuthEvent(flowSignup, metrics.OutcomeRejected)
			return nil, model.NewBadRequestError(MsgPasswordTooLong)
		}
		return nil, s.internal(flowSignup, internalMsg, err)
	}

	now := s.config.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     in.Username,
		PasswordHash: &hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.metrics.RecordAuthEvent(flowSignup, metrics.OutcomeRejected)
			return nil, model.NewConflictError(MsgUserExists)
		}
		return nil, s.internal(flowSignup, internalMsg, err)
	}

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)

	if err := s.issueVerification(ctx, user); err != nil {
		return nil, s.internal(flowSignup, internalMsg, err)
	}

	s.metrics.RecordAuthEvent(flowSignup, metrics.OutcomeSuccess)
	return &RegisterResult{Message: MsgVerificationSent, IsVerified: false}, nil
}

// SignInInput はサインインの入力。
type SignInInput struct {
	Email    string
	Password string
}

// SignInResult はサインインの結果。
// IsVerifiedがfalseの場合は確認メールを再送しており、トークンは空。
type SignInResult struct {
	IsVerified   bool
	Message      string
	AccessToken  string
	RefreshToken string
}

// SignIn はパスワードでサインインし、セッショントークンを発行する。
// メール確認待ちのユーザーにはパスワードを照合せずに確認メールを再送する。
func (s *Service) SignIn(ctx context.Context, in SignInInput) (*SignInResult, error) {
	const internalMsg = "Error while processing your request"
	email := model.NormalizeEmail(in.Email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, s.internal(flowSignin, internalMsg, err)
	}
	if user == nil {
		s.metrics.RecordAuthEvent(flowSignin, metrics.OutcomeRejected)
		return nil, model.NewNotFoundError(MsgUserNotFound)
	}

	if !user.IsVerified() {
		if !s.allow(ctx, throttle.ActionResendVerify, email, flowSignin) {
			return nil, model.NewTooManyRequestsError()
		}
		if err := s.issueVerification(ctx, user); err != nil {
			return nil, s.internal(flowSignin, internalMsg, err)
		}
		s.metrics.RecordAuthEvent(flowSignin, metrics.OutcomeUnverified)
		return &SignInResult{IsVerified: false, Message: MsgVerificationSent}, nil
	}

	if !user.HasPassword() {
		s.metrics.RecordAuthEvent(flowSignin, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgInvalidCredential)
	}

	if err := s.hasher.Compare(*user.PasswordHash, in.Password); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			s.metrics.RecordAuthEvent(flowSignin, metrics.OutcomeRejected)
			return nil, model.NewBadRequestError(MsgInvalidCredential)
		}
		return nil, s.internal(flowSignin, internalMsg, err)
	}

	pair, err := s.tokens.IssueSessionTokens(user.ID)
	if err != nil {
		return nil, s.internal(flowSignin, internalMsg, err)
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))
	s.metrics.RecordAuthEvent(flowSignin, metrics.OutcomeSuccess)

	return &SignInResult{
		IsVerified:   true,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

// VerifyEmailResult はメール確認の結果。
type VerifyEmailResult struct {
	Code    string
	Message string
}

// VerifyEmail はメール確認トークンでユーザーを確認済みにする。
// 確認済みユーザーのトークンは期限に関わらずALREADY_VERIFIEDを返す。トークンは削除しない。
func (s *Service) VerifyEmail(ctx context.Context, tok string) (*VerifyEmailResult, error) {
	const internalMsg = "Unknown error occurred during token verification."

	vt, err := s.verifications.FindByToken(ctx, tok)
	if err != nil {
		return nil, s.internal(flowVerifyEmail, internalMsg, err)
	}
	if vt == nil {
		s.metrics.RecordAuthEvent(flowVerifyEmail, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgVerifyFailed)
	}

	user, err := s.users.FindByID(ctx, vt.UserID)
	if err != nil {
		return nil, s.internal(flowVerifyEmail, internalMsg, err)
	}
	if user == nil {
		s.metrics.RecordAuthEvent(flowVerifyEmail, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgVerifyFailed)
	}

	if user.IsVerified() {
		s.metrics.RecordAuthEvent(flowVerifyEmail, metrics.OutcomeSuccess)
		return &VerifyEmailResult{Code: CodeAlreadyVerified, Message: MsgAlreadyVerified}, nil
	}

	now := s.config.Now()
	if vt.IsExpired(now) {
		s.metrics.RecordAuthEvent(flowVerifyEmail, metrics.OutcomeRejected)
		return nil, model.NewBadRequestError(MsgVerifyFailed)
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID, now); err != nil {
		return nil, s.internal(flowVerifyEmail, internalMsg, err)
	}

	slog.Info("email verified", slog.String("user_id", user.ID))
	s.metrics.RecordAuthEvent(flowVerifyEmail, metrics.OutcomeSuccess)

	return &VerifyEmailResult{Code: CodeVerified, Message: MsgVerified}, nil
}

// issueVerification はメール確認トークンを差し替えて確認メールを送信する。
// トークンの保存後に送信が失敗してもトークンは残る。
func (s *Service) issueVerification(ctx context.Context, user *model.User) error {
	tok, err := s.config.NewToken()
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}

	now := s.config.Now()
	if err := s.verifications.ReplaceForUser(ctx, &model.EmailVerificationToken{
		Token:     tok,
		UserID:    user.ID,
		ExpireAt:  now.Add(s.config.VerificationTokenTTL),
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to store verification token: %w", err)
	}

	if err := s.mailer.SendVerificationEmail(ctx, user.Email, tok); err != nil {
		s.metrics.RecordEmailFailure("verification")
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	s.metrics.RecordEmailSent("verification")

	return nil
}

// allow は回数制限を確認する。Throttleが未設定の場合は常に許可する。
func (s *Service) allow(ctx context.Context, action, email, flow string) bool {
	if s.throttle == nil {
		return true
	}
	if s.throttle.Allow(ctx, action, email) {
		return true
	}
	s.metrics.RecordAuthEvent(flow, metrics.OutcomeThrottled)
	return false
}

// internal は原因をログに記録し、呼び出し元向けの内部エラーを返す。
func (s *Service) internal(flow, message string, err error) error {
	slog.Error("auth flow failed",
		slog.String("flow", flow),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordAuthEvent(flow, metrics.OutcomeError)
	return model.NewInternalError(message)
}
