package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher_HashAndCompare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash == "secret1" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash format: %q", hash)
	}

	t.Run("正しいパスワードは一致する", func(t *testing.T) {
		if err := h.Compare(hash, "secret1"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("誤ったパスワードはErrMismatch", func(t *testing.T) {
		if err := h.Compare(hash, "wrong"); !errors.Is(err, ErrMismatch) {
			t.Errorf("err = %v, want ErrMismatch", err)
		}
	})

	t.Run("ハッシュ形式が不正な場合はErrMismatch以外のエラー", func(t *testing.T) {
		err := h.Compare("not-a-hash", "secret1")
		if err == nil || errors.Is(err, ErrMismatch) {
			t.Errorf("err = %v, want non-mismatch error", err)
		}
	})
}

func TestBcryptHasher_SaltedHashesDiffer(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestNewBcryptHasher_DefaultCost(t *testing.T) {
	h := NewBcryptHasher(0)
	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("Cost failed: %v", err)
	}
	if cost != DefaultCost {
		t.Errorf("cost = %d, want %d", cost, DefaultCost)
	}
}

func TestBcryptHasher_TooLongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	t.Run("72バイトまではハッシュ化できる", func(t *testing.T) {
		if _, err := h.Hash(strings.Repeat("a", MaxBytes)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("72バイトを超えるとErrTooLong", func(t *testing.T) {
		// マルチバイト文字は文字数ではなくバイト数で数える
		if _, err := h.Hash(strings.Repeat("あ", 25)); !errors.Is(err, ErrTooLong) {
			t.Errorf("err = %v, want ErrTooLong", err)
		}
	})

	t.Run("照合では不一致として扱う", func(t *testing.T) {
		hash, _ := h.Hash("secret1")
		if err := h.Compare(hash, strings.Repeat("a", MaxBytes+1)); !errors.Is(err, ErrMismatch) {
			t.Errorf("err = %v, want ErrMismatch", err)
		}
	})
}
