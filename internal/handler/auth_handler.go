// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/finwise/internal/auth"
	"github.com/hitoshi/finwise/internal/middleware"
	"github.com/hitoshi/finwise/internal/model"
	"github.com/hitoshi/finwise/internal/token"
)

const (
	refreshCookieName = "refreshToken"
	oauthStateCookie  = "oauth_state"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.RegisterResult, error)
	SignIn(ctx context.Context, in auth.SignInInput) (*auth.SignInResult, error)
	VerifyEmail(ctx context.Context, tok string) (*auth.VerifyEmailResult, error)
	RequestPasswordReset(ctx context.Context, email string) (*auth.MessageResult, error)
	CheckResetToken(ctx context.Context, tok string) (*auth.ResetTokenStatus, error)
	ResetPassword(ctx context.Context, in auth.ResetPasswordInput) (*auth.ResetPasswordResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)

	OAuthEnabled(provider string) bool
	GetLoginURL(provider, state string) string
	HandleOAuthCallback(ctx context.Context, provider, code string) (token.Pair, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string
	CookieDomain string
	CookieSecure bool
	RefreshTTL   time.Duration // リフレッシュトークンCookieの有効期間
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Signup はアカウント登録を処理する。
// POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.normalize()
	if apiErr := req.validate(); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, apiErr)
		return
	}

	res, err := h.service.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    res.Message,
		"isVerified": res.IsVerified,
		"success":    true,
	})
}

// Signin はパスワードによるサインインを処理する。
// 確認済みの場合はリフレッシュトークンをHTTP Only Cookieに設定する。
// POST /auth/signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, apiErr)
		return
	}

	res, err := h.service.SignIn(r.Context(), auth.SignInInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if !res.IsVerified {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":    res.Message,
			"isVerified": false,
			"success":    true,
		})
		return
	}

	h.setRefreshCookie(w, res.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": res.AccessToken,
		"isVerified":  true,
		"success":     true,
	})
}

// VerifyEmail はメール確認リンクを処理する。
// GET /auth/verify-email/{token}
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.VerifyEmail(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"Code":    res.Code,
		"message": res.Message,
		"success": true,
	})
}

// RequestPasswordReset はパスワード再設定メールの送信を要求する。
// POST /auth/reset-password
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, apiErr)
		return
	}

	res, err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": res.Message,
	})
}

// VerifyResetToken はパスワード再設定トークンの状態を返す。
// GET /auth/verify-token/{token}
func (h *AuthHandler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CheckResetToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"Code":    res.Code,
		"success": true,
	})
}

// ResetPassword はパスワード再設定を完了する。
// POST /auth/reset-password/{token}
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if apiErr := req.validate(); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusUnprocessableEntity, apiErr)
		return
	}

	res, err := h.service.ResetPassword(r.Context(), auth.ResetPasswordInput{
		Token:           chi.URLParam(r, "token"),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"Code":    res.Code,
		"success": true,
	})
}

// Refresh はCookieのリフレッシュトークンで新しいアクセストークンを発行する。
// POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var refreshToken string
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		refreshToken = cookie.Value
	}

	res, err := h.service.Refresh(r.Context(), refreshToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": res.AccessToken,
		"user":        res.Username,
	})
}

// Logout はリフレッシュトークンCookieを削除する。
// サーバー側で失効させるトークンは持たない。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearCookie(w, refreshCookieName, http.SameSiteStrictMode)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me (Bearer)
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Unauthorized"))
		return
	}

	user, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         user.ID,
		"email":      user.Email,
		"username":   user.Username,
		"isVerified": user.IsVerified(),
	})
}

// OAuthLogin はproviderのOAuthフローを開始するハンドラーを返す。
// GET /auth/{provider}/login
func (h *AuthHandler) OAuthLogin(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := token.NewOpaque()
		if err != nil {
			slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
			return
		}

		// stateをCookieに保存（CSRF対策）
		http.SetCookie(w, &http.Cookie{
			Name:     oauthStateCookie,
			Value:    state,
			Path:     oauthCookiePath(provider),
			MaxAge:   600,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})

		http.Redirect(w, r, h.service.GetLoginURL(provider, state), http.StatusTemporaryRedirect)
	}
}

// OAuthCallback はproviderのOAuthコールバックを処理し、フロントエンドへリダイレクトするハンドラーを返す。
// GET /auth/{provider}/callback?code=xxx&state=yyy
func (h *AuthHandler) OAuthCallback(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. stateの検証
		state := r.URL.Query().Get("state")
		stateCookie, err := r.Cookie(oauthStateCookie)
		if err != nil || state == "" || stateCookie.Value != state {
			slog.Warn("oauth state mismatch", slog.String("provider", provider))
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("Invalid state parameter"))
			return
		}
		h.clearStateCookie(w, provider)

		// 2. 認可コードの取得
		code := r.URL.Query().Get("code")
		if code == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewBadRequestError("Missing authorization code"))
			return
		}

		// 3. 認証処理
		pair, err := h.service.HandleOAuthCallback(r.Context(), provider, code)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		// 4. リフレッシュトークンをCookieに設定し、フロントエンドへ
		h.setRefreshCookie(w, pair.RefreshToken)
		http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
	}
}

// oauthCookiePath はstate Cookieをプロバイダーのパス配下に限定する。
func oauthCookiePath(provider string) string {
	return "/auth/" + provider
}

// setRefreshCookie はリフレッシュトークンをHTTP Only Cookieに設定する。
func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: sameSite,
	})
}

func (h *AuthHandler) clearStateCookie(w http.ResponseWriter, provider string) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     oauthCookiePath(provider),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
