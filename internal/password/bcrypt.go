// Package password はパスワードのハッシュ化と照合を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost はbcryptのデフォルトコスト。
const DefaultCost = 10

// MaxBytes はbcryptが扱えるパスワードの最大バイト数。
const MaxBytes = 72

var (
	// ErrMismatch はパスワードがハッシュと一致しないことを表す。
	ErrMismatch = errors.New("password does not match")

	// ErrTooLong はパスワードがMaxBytesを超えていることを表す。
	ErrTooLong = errors.New("password exceeds 72 bytes")
)

// Hasher はパスワードハッシュの生成と照合のインターフェース。
type Hasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
}

// BcryptHasher はbcryptによるHasher実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。範囲外のコストはDefaultCostに置き換える。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash は平文パスワードのbcryptハッシュを返す。
// MaxBytesを超える場合はErrTooLongを返す。
func (h *BcryptHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrTooLong
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Compare はハッシュと平文を照合する。不一致の場合はErrMismatchを返す。
// MaxBytesを超えるパスワードは登録できないため不一致として扱う。
func (h *BcryptHasher) Compare(hash, plain string) error {
	if len(plain) > MaxBytes {
		return ErrMismatch
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to compare password: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Hasher = (*BcryptHasher)(nil)
