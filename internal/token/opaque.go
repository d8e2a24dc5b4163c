// Package token はメール確認・パスワード再設定用の不透明トークンと、
// セッション用のアクセス/リフレッシュトークンの発行・検証を提供する。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// opaqueBytes は不透明トークンのエントロピー（バイト数）。
const opaqueBytes = 32

// NewOpaque は暗号的に安全な乱数から64文字の16進トークンを生成する。
func NewOpaque() (string, error) {
	b := make([]byte, opaqueBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
