package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/finwise/internal/auth"
	"github.com/hitoshi/finwise/internal/metrics"
	"github.com/hitoshi/finwise/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 認証
	AuthService   AuthServiceInterface
	AuthConfig    AuthHandlerConfig
	TokenVerifier middleware.AccessTokenVerifier

	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	HSTS              bool

	// TrustProxyHeaders はX-Forwarded-For/X-Real-IPをクライアントIPとして採用するか。
	// 信頼できるリバースプロキシの背後でのみtrueにする。
	TrustProxyHeaders bool

	// 運用エンドポイント
	Health         http.Handler
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → (RealIP) → Recovery → Logging → Metrics → SecurityHeaders → CORS
//
// RealIPはTrustProxyHeadersがtrueの場合のみ有効にする。直接公開する構成では
// クライアントがヘッダーを偽装してレート制限を回避できるため、接続元アドレスを使う。
// /auth/* にはクライアントIP単位のレート制限を追加する。
// Cookieで認証する /auth/refresh と /auth/logout にはOriginチェックを、
// /auth/me にはBearerアクセストークン認証を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r.Use(chimw.RequestID)
	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	h := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	originCheck := middleware.NewOriginCheckMiddleware(deps.CORSAllowedOrigin)

	r.Route("/auth", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		// パスワード認証
		r.Post("/signup", h.Signup)
		r.Post("/signin", h.Signin)
		r.Get("/verify-email/{token}", h.VerifyEmail)

		// パスワード再設定
		r.Post("/reset-password", h.RequestPasswordReset)
		r.Get("/verify-token/{token}", h.VerifyResetToken)
		r.Post("/reset-password/{token}", h.ResetPassword)

		// セッション
		r.With(originCheck).Post("/refresh", h.Refresh)
		r.With(originCheck).Post("/logout", h.Logout)
		r.With(middleware.NewAuthMiddleware(deps.TokenVerifier)).Get("/me", h.Me)

		// ソーシャルログイン（構成されているプロバイダーのみ）
		for _, provider := range []string{auth.ProviderGoogle, auth.ProviderGitHub} {
			if deps.AuthService.OAuthEnabled(provider) {
				r.Get("/"+provider+"/login", h.OAuthLogin(provider))
				r.Get("/"+provider+"/callback", h.OAuthCallback(provider))
			}
		}
	})

	if deps.Health != nil {
		r.Method(http.MethodGet, "/health", deps.Health)
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	return r
}
