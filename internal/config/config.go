// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`

	// Token
	AccessJWTSecret      string        `env:"ACCESS_JWT_SECRET" env-required:"true"`
	RefreshJWTSecret     string        `env:"REFRESH_JWT_SECRET" env-required:"true"`
	AccessTokenTTL       time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL      time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	VerificationTokenTTL time.Duration `env:"VERIFICATION_TOKEN_TTL" env-default:"24h"`
	ResetTokenTTL        time.Duration `env:"RESET_TOKEN_TTL" env-default:"24h"`
	BcryptCost           int           `env:"BCRYPT_COST" env-default:"10"`

	// Frontend
	FrontendURL string `env:"FRONTEND_URL" env-required:"true"`

	// Server
	ServerPort string `env:"SERVER_PORT" env-default:"8080"`
	AppEnv     string `env:"APP_ENV" env-default:"development"`

	// Cookie
	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"-"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN"`

	// Mail
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" env-default:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASS"`
	MailFrom     string `env:"MAIL_FROM" env-default:"no-reply@finwise.local"`

	// Throttle
	RedisURL       string        `env:"REDIS_URL"`
	ThrottleMax    int           `env:"THROTTLE_MAX" env-default:"5"`
	ThrottleWindow time.Duration `env:"THROTTLE_WINDOW" env-default:"1h"`

	// OAuth
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GitHubRedirectURL  string `env:"GITHUB_REDIRECT_URL"`

	// Rate Limit
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" env-default:"30"`
	// リバースプロキシの背後でのみtrueにする
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" env-default:"false"`

	// Worker
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" env-default:"24h"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定または空の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// cleanenvは空文字列を設定済みとして扱うため、必須項目はここで再確認する
	var missing []string
	for _, req := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"ACCESS_JWT_SECRET", cfg.AccessJWTSecret},
		{"REFRESH_JWT_SECRET", cfg.RefreshJWTSecret},
		{"FRONTEND_URL", cfg.FrontendURL},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.AccessJWTSecret == cfg.RefreshJWTSecret {
		return nil, fmt.Errorf("ACCESS_JWT_SECRET and REFRESH_JWT_SECRET must differ")
	}

	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	cfg.CookieSecure = cfg.IsProduction() || strings.HasPrefix(cfg.FrontendURL, "https://")
	if cfg.CORSAllowedOrigin == "" {
		cfg.CORSAllowedOrigin = cfg.FrontendURL
	}

	return cfg, nil
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// SMTPEnabled はSMTP送信が設定されているかを返す。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// ThrottleEnabled はRedisによる送信回数制限が設定されているかを返す。
func (c *Config) ThrottleEnabled() bool {
	return c.RedisURL != ""
}

// GoogleOAuthEnabled はGoogleログインの3項目が全て設定されているかを返す。
func (c *Config) GoogleOAuthEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURL != ""
}

// GitHubOAuthEnabled はGitHubログインの3項目が全て設定されているかを返す。
func (c *Config) GitHubOAuthEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != "" && c.GitHubRedirectURL != ""
}
