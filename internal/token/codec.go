package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid は署名不正・形式不正・種別違いのトークンを表す。
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired は有効期限切れのトークンを表す。
	ErrTokenExpired = errors.New("token is expired")
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// Config はCodecの設定。
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now はテスト用にオーバーライド可能な時計。nilの場合はtime.Now。
	Now func() time.Time
}

// Pair はサインイン時に発行するトークンの組。
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// sessionClaims はセッショントークンのクレーム。
// ユーザーIDは "id" クレームに格納する。
type sessionClaims struct {
	UserID string `json:"id"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Codec はHS256でセッショントークンを署名・検証する。
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewCodec はCodecを生成する。
// シークレットが空の場合、またはアクセス用とリフレッシュ用が同一の場合はエラーを返す。
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("token secrets must not be empty")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, fmt.Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, fmt.Errorf("token TTLs must be positive")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           now,
	}, nil
}

// RefreshTTL はリフレッシュトークンの有効期間を返す。Cookieの Max-Age に使用する。
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssueSessionTokens はアクセストークンとリフレッシュトークンを発行する。
func (c *Codec) IssueSessionTokens(userID string) (Pair, error) {
	access, err := c.sign(userID, typeAccess, c.accessSecret, c.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := c.sign(userID, typeRefresh, c.refreshSecret, c.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueAccessToken はアクセストークンのみを発行する。
func (c *Codec) IssueAccessToken(userID string) (string, error) {
	return c.sign(userID, typeAccess, c.accessSecret, c.accessTTL)
}

// VerifyRefreshToken はリフレッシュトークンを検証し、ユーザーIDを返す。
func (c *Codec) VerifyRefreshToken(tokenString string) (string, error) {
	return c.verify(tokenString, typeRefresh, c.refreshSecret)
}

// VerifyAccessToken はアクセストークンを検証し、ユーザーIDを返す。
func (c *Codec) VerifyAccessToken(tokenString string) (string, error) {
	return c.verify(tokenString, typeAccess, c.accessSecret)
}

func (c *Codec) sign(userID, typ string, secret []byte, ttl time.Duration) (string, error) {
	now := c.now()
	claims := sessionClaims{
		UserID: userID,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, nil
}

func (c *Codec) verify(tokenString, typ string, secret []byte) (string, error) {
	if tokenString == "" {
		return "", ErrTokenInvalid
	}

	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Type != typ || claims.UserID == "" {
		return "", ErrTokenInvalid
	}

	return claims.UserID, nil
}
