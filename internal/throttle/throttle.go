// Package throttle はメール送信を伴う操作に対するメールアドレス単位の回数制限を提供する。
package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// メール送信を伴う操作の種別。Redisキーの名前空間として使用する。
const (
	ActionSignup        = "signup"
	ActionResendVerify  = "resend_verify"
	ActionPasswordReset = "password_reset"
)

const (
	defaultMaxPerWindow = 5
	defaultWindow       = time.Hour
	keyPrefix           = "finwise:throttle:"
)

// Config はThrottleの設定。
type Config struct {
	Max    int
	Window time.Duration
}

// Throttle はRedisの固定ウィンドウカウンタで (操作, メールアドレス) ごとの回数を制限する。
// Redisが利用できない場合はリクエストを許可する。
type Throttle struct {
	redis  *redis.Client
	max    int64
	window time.Duration
}

// New はThrottleを生成する。ゼロ値の設定項目にはデフォルト値を使う。
func New(client *redis.Client, cfg Config) *Throttle {
	if cfg.Max <= 0 {
		cfg.Max = defaultMaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	return &Throttle{redis: client, max: int64(cfg.Max), window: cfg.Window}
}

// NewFromURL はredis://形式のURLからクライアントを作成してThrottleを返す。
func NewFromURL(redisURL string, cfg Config) (*Throttle, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return New(redis.NewClient(opts), cfg), nil
}

// Allow はカウンタを1増やし、ウィンドウ内の上限以内であればtrueを返す。
func (t *Throttle) Allow(ctx context.Context, action, email string) bool {
	key := keyPrefix + action + ":" + email

	// INCRとEXPIRE NXを同じトランザクションで送り、TTLのないカウンタを残さない。
	// NXにより既存のウィンドウは延長しない。
	var incr *redis.IntCmd
	if _, err := t.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, t.window)
		return nil
	}); err != nil {
		slog.Warn("throttle unavailable, allowing request",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return true
	}
	count := incr.Val()

	if count > t.max {
		slog.Info("throttled",
			slog.String("action", action),
			slog.String("email", email),
		)
		return false
	}
	return true
}

// Ping はRedisへの疎通を確認する。
func (t *Throttle) Ping(ctx context.Context) error {
	return t.redis.Ping(ctx).Err()
}

// Close はRedisクライアントを閉じる。
func (t *Throttle) Close() error {
	return t.redis.Close()
}
