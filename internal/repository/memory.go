package repository

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/finwise/internal/model"
)

// MemoryStore はプロセス内メモリで全リポジトリを実装するストア。
// ローカル開発とテストで使用する。PostgreSQL実装と同じ制約（メール一意性、
// ユーザーごとのトークン1件、使用済みガード）を再現する。
type MemoryStore struct {
	mu sync.Mutex

	users         map[string]*model.User
	identities    map[string]*model.Identity // key: provider + "\x00" + providerUserID
	verifications map[string]*model.EmailVerificationToken
	resets        map[string]*model.PasswordResetToken
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		identities:    make(map[string]*model.Identity),
		verifications: make(map[string]*model.EmailVerificationToken),
		resets:        make(map[string]*model.PasswordResetToken),
	}
}

// Users はUserRepositoryとしてのビューを返す。
func (s *MemoryStore) Users() *MemoryUserRepo { return &MemoryUserRepo{s: s} }

// Identities はIdentityRepositoryとしてのビューを返す。
func (s *MemoryStore) Identities() *MemoryIdentityRepo { return &MemoryIdentityRepo{s: s} }

// VerificationTokens はVerificationTokenRepositoryとしてのビューを返す。
func (s *MemoryStore) VerificationTokens() *MemoryVerificationTokenRepo {
	return &MemoryVerificationTokenRepo{s: s}
}

// ResetTokens はResetTokenRepositoryとしてのビューを返す。
func (s *MemoryStore) ResetTokens() *MemoryResetTokenRepo { return &MemoryResetTokenRepo{s: s} }

// UserCount は保持しているユーザー数を返す。テスト用。
func (s *MemoryStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// VerificationTokensFor は指定ユーザーのメール確認トークンを返す。テスト用。
func (s *MemoryStore) VerificationTokensFor(userID string) []model.EmailVerificationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.EmailVerificationToken
	for _, t := range s.verifications {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out
}

// ResetTokensFor は指定ユーザーのパスワード再設定トークンを返す。テスト用。
func (s *MemoryStore) ResetTokensFor(userID string) []model.PasswordResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PasswordResetToken
	for _, t := range s.resets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out
}

// DeleteUser はユーザーと関連レコードを削除する。テスト用。
func (s *MemoryStore) DeleteUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	for k, t := range s.verifications {
		if t.UserID == id {
			delete(s.verifications, k)
		}
	}
	for k, t := range s.resets {
		if t.UserID == id {
			delete(s.resets, k)
		}
	}
	for k, i := range s.identities {
		if i.UserID == id {
			delete(s.identities, k)
		}
	}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	if u.EmailVerifiedAt != nil {
		t := *u.EmailVerifiedAt
		c.EmailVerifiedAt = &t
	}
	return &c
}

func (s *MemoryStore) findUserByEmailLocked(email string) *model.User {
	normalized := model.NormalizeEmail(email)
	for _, u := range s.users {
		if model.NormalizeEmail(u.Email) == normalized {
			return u
		}
	}
	return nil
}

// MemoryUserRepo はMemoryStore上のUserRepository実装。
type MemoryUserRepo struct{ s *MemoryStore }

// FindByID は指定IDのユーザーを取得する。
func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.findUserByEmailLocked(email)
	if u == nil {
		return nil, nil
	}
	return cloneUser(u), nil
}

// Create はユーザーを作成する。
func (r *MemoryUserRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.findUserByEmailLocked(user.Email) != nil {
		return ErrDuplicateEmail
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

// CreateWithIdentity はユーザーとidentityを同時に作成する。
func (r *MemoryUserRepo) CreateWithIdentity(_ context.Context, user *model.User, identity *model.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.findUserByEmailLocked(user.Email) != nil {
		return ErrDuplicateEmail
	}
	r.s.users[user.ID] = cloneUser(user)
	i := *identity
	r.s.identities[identity.Provider+"\x00"+identity.ProviderUserID] = &i
	return nil
}

// LinkIdentity はidentityを紐付け、確認待ちユーザーであれば確認済みとして取り込む。
func (r *MemoryUserRepo) LinkIdentity(_ context.Context, identity *model.Identity, username string, verifiedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[identity.UserID]
	if !ok {
		return nil
	}
	if u.EmailVerifiedAt == nil {
		t := verifiedAt
		u.EmailVerifiedAt = &t
		u.PasswordHash = nil
		u.Username = username
		u.UpdatedAt = verifiedAt
		for k, t := range r.s.verifications {
			if t.UserID == u.ID {
				delete(r.s.verifications, k)
			}
		}
	}
	key := identity.Provider + "\x00" + identity.ProviderUserID
	if _, ok := r.s.identities[key]; !ok {
		i := *identity
		r.s.identities[key] = &i
	}
	return nil
}

// MarkEmailVerified はメール確認日時を設定する。既に設定済みの場合は変更しない。
func (r *MemoryUserRepo) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil
	}
	if u.EmailVerifiedAt == nil {
		t := at
		u.EmailVerifiedAt = &t
		u.UpdatedAt = at
	}
	return nil
}

// MemoryIdentityRepo はMemoryStore上のIdentityRepository実装。
type MemoryIdentityRepo struct{ s *MemoryStore }

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
func (r *MemoryIdentityRepo) FindByProviderAndProviderUserID(_ context.Context, provider, providerUserID string) (*model.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.identities[provider+"\x00"+providerUserID]
	if !ok {
		return nil, nil
	}
	c := *i
	return &c, nil
}

// Create はidentityを作成する。既存の組は上書きしない。
func (r *MemoryIdentityRepo) Create(_ context.Context, identity *model.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := identity.Provider + "\x00" + identity.ProviderUserID
	if _, ok := r.s.identities[key]; ok {
		return nil
	}
	i := *identity
	r.s.identities[key] = &i
	return nil
}

// MemoryVerificationTokenRepo はMemoryStore上のVerificationTokenRepository実装。
type MemoryVerificationTokenRepo struct{ s *MemoryStore }

// FindByToken はトークン値で検索する。
func (r *MemoryVerificationTokenRepo) FindByToken(_ context.Context, token string) (*model.EmailVerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.verifications[token]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// ReplaceForUser はユーザーの既存トークンを削除してから挿入する。
func (r *MemoryVerificationTokenRepo) ReplaceForUser(_ context.Context, token *model.EmailVerificationToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, t := range r.s.verifications {
		if t.UserID == token.UserID {
			delete(r.s.verifications, k)
		}
	}
	c := *token
	r.s.verifications[token.Token] = &c
	return nil
}

// DeleteExpiredPending は確認待ちユーザーの期限切れトークンを削除する。
func (r *MemoryVerificationTokenRepo) DeleteExpiredPending(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for k, t := range r.s.verifications {
		u, ok := r.s.users[t.UserID]
		if !ok || u.EmailVerifiedAt != nil {
			continue
		}
		if t.ExpireAt.Before(now) {
			delete(r.s.verifications, k)
			n++
		}
	}
	return n, nil
}

// MemoryResetTokenRepo はMemoryStore上のResetTokenRepository実装。
type MemoryResetTokenRepo struct{ s *MemoryStore }

// FindByToken はトークン値で検索する。
func (r *MemoryResetTokenRepo) FindByToken(_ context.Context, token string) (*model.PasswordResetToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.resets[token]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

// ReplaceForUser はユーザーの既存トークンを削除してから挿入する。
func (r *MemoryResetTokenRepo) ReplaceForUser(_ context.Context, token *model.PasswordResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k, t := range r.s.resets {
		if t.UserID == token.UserID {
			delete(r.s.resets, k)
		}
	}
	c := *token
	r.s.resets[token.Token] = &c
	return nil
}

// CompleteReset はトークンを使用済みにし、パスワードハッシュを更新する。
func (r *MemoryResetTokenRepo) CompleteReset(_ context.Context, token, userID, passwordHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.resets[token]
	if !ok || t.UserID != userID || t.IsUsed {
		return ErrTokenUsed
	}
	u, ok := r.s.users[userID]
	if !ok {
		return ErrTokenUsed
	}
	t.IsUsed = true
	h := passwordHash
	u.PasswordHash = &h
	u.UpdatedAt = time.Now()
	return nil
}

// compile-time interface check
var (
	_ UserRepository              = (*MemoryUserRepo)(nil)
	_ IdentityRepository          = (*MemoryIdentityRepo)(nil)
	_ VerificationTokenRepository = (*MemoryVerificationTokenRepo)(nil)
	_ ResetTokenRepository        = (*MemoryResetTokenRepo)(nil)
)
