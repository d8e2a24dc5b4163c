package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultGitHubAuthURL  = "https://github.com/login/oauth/authorize"
	defaultGitHubTokenURL = "https://github.com/login/oauth/access_token"
	defaultGitHubAPIURL   = "https://api.github.com"
)

// GitHubOAuthConfig はGitHub OAuth Appの設定。
type GitHubOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL  string
	TokenURL string
	APIURL   string
}

// GitHubOAuthProvider はGitHubアカウントでのサインインを提供する。
// /userのemailは非公開設定で空になるため、メールアドレスは/user/emailsの
// 確認済みプライマリアドレスを使う。
type GitHubOAuthProvider struct {
	client  *oauthClient
	authURL string
	apiURL  string
}

// NewGitHubOAuthProvider はGitHubOAuthProviderを生成する。
func NewGitHubOAuthProvider(config GitHubOAuthConfig) *GitHubOAuthProvider {
	p := &GitHubOAuthProvider{
		authURL: defaultGitHubAuthURL,
		apiURL:  defaultGitHubAPIURL,
	}
	if config.AuthURL != "" {
		p.authURL = config.AuthURL
	}
	if config.APIURL != "" {
		p.apiURL = strings.TrimRight(config.APIURL, "/")
	}
	tokenURL := defaultGitHubTokenURL
	if config.TokenURL != "" {
		tokenURL = config.TokenURL
	}

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", "2022-11-28")

	p.client = newOAuthClient(config.ClientID, config.ClientSecret, config.RedirectURL, tokenURL, header)
	return p
}

// Name はプロバイダー名を返す。
func (p *GitHubOAuthProvider) Name() string { return ProviderGitHub }

// GetLoginURL はGitHubの認可URLを生成する。
func (p *GitHubOAuthProvider) GetLoginURL(state string) string {
	return p.client.authCodeURL(p.authURL, state, url.Values{
		"scope":        {"read:user user:email"},
		"allow_signup": {"true"},
	})
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// ExchangeCode は認可コードを交換し、GitHubアカウントの情報を返す。
func (p *GitHubOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	accessToken, err := p.client.exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}

	var user githubUser
	if err := p.client.getJSON(ctx, p.apiURL+"/user", accessToken, &user); err != nil {
		return nil, fmt.Errorf("github: failed to fetch user: %w", err)
	}
	if user.ID == 0 {
		return nil, errors.New("github: user has no id")
	}

	var emails []githubEmail
	if err := p.client.getJSON(ctx, p.apiURL+"/user/emails", accessToken, &emails); err != nil {
		return nil, fmt.Errorf("github: failed to fetch emails: %w", err)
	}
	email := primaryVerifiedEmail(emails)
	if email == "" {
		return nil, errors.New("github: account has no verified primary email")
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &OAuthUserInfo{
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          email,
		Name:           name,
		Provider:       ProviderGitHub,
	}, nil
}

func primaryVerifiedEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	return ""
}

// compile-time interface check
var _ OAuthProvider = (*GitHubOAuthProvider)(nil)
