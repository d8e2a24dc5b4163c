package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGitHubOAuthProvider_GetLoginURL_ContainsRequiredParams(t *testing.T) {
	provider := NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:    "gh-client-id",
		RedirectURL: "http://localhost:8080/auth/github/callback",
	})

	loginURL := provider.GetLoginURL("state-1")
	if !strings.HasPrefix(loginURL, defaultGitHubAuthURL+"?") {
		t.Fatalf("login URL = %q, want prefix %q", loginURL, defaultGitHubAuthURL)
	}

	u, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("login URL is not parseable: %v", err)
	}
	q := u.Query()

	tests := []struct {
		param string
		want  string
	}{
		{"client_id", "gh-client-id"},
		{"redirect_uri", "http://localhost:8080/auth/github/callback"},
		{"state", "state-1"},
		{"scope", "read:user user:email"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			if got := q.Get(tt.param); got != tt.want {
				t.Errorf("%s = %q, want %q", tt.param, got, tt.want)
			}
		})
	}

	if provider.Name() != ProviderGitHub {
		t.Errorf("Name() = %q, want %q", provider.Name(), ProviderGitHub)
	}
}

// newGitHubServer はトークンエンドポイントとREST APIを1台のテストサーバーで模倣する。
func newGitHubServer(t *testing.T, user map[string]interface{}, emails []map[string]interface{}) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("token request Accept = %q, want application/json", r.Header.Get("Accept"))
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Form.Get("code") != "good-code" {
			// GitHubは無効なコードでも200を返す
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "bad_verification_code",
				"error_description": "The code passed is incorrect or expired.",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gh-token", "token_type": "bearer"})
	})
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		if r.Header.Get("Accept") != "application/vnd.github+json" {
			t.Errorf("api Accept = %q", r.Header.Get("Accept"))
		}
		return true
	}
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) {
			json.NewEncoder(w).Encode(user)
		}
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if authorized(w, r) {
			json.NewEncoder(w).Encode(emails)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestGitHubProvider(server *httptest.Server) *GitHubOAuthProvider {
	return NewGitHubOAuthProvider(GitHubOAuthConfig{
		ClientID:     "gh-client-id",
		ClientSecret: "gh-secret",
		RedirectURL:  "http://localhost:8080/auth/github/callback",
		TokenURL:     server.URL + "/login/oauth/access_token",
		APIURL:       server.URL,
	})
}

func TestGitHubOAuthProvider_ExchangeCode_UsesPrimaryVerifiedEmail(t *testing.T) {
	server := newGitHubServer(t,
		map[string]interface{}{"id": 4242, "login": "octocat", "name": "The Octocat"},
		[]map[string]interface{}{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	)

	info, err := newTestGitHubProvider(server).ExchangeCode(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if info.Provider != ProviderGitHub {
		t.Errorf("provider = %q, want %q", info.Provider, ProviderGitHub)
	}
	if info.ProviderUserID != "4242" {
		t.Errorf("providerUserID = %q, want 4242", info.ProviderUserID)
	}
	if info.Email != "octo@example.com" {
		t.Errorf("email = %q, want octo@example.com", info.Email)
	}
	if info.Name != "The Octocat" {
		t.Errorf("name = %q, want The Octocat", info.Name)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_FallsBackToLogin(t *testing.T) {
	server := newGitHubServer(t,
		map[string]interface{}{"id": 7, "login": "octocat"},
		[]map[string]interface{}{{"email": "octo@example.com", "primary": true, "verified": true}},
	)

	info, err := newTestGitHubProvider(server).ExchangeCode(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}
	if info.Name != "octocat" {
		t.Errorf("name = %q, want octocat", info.Name)
	}
}

func TestGitHubOAuthProvider_ExchangeCode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		user   map[string]interface{}
		emails []map[string]interface{}
	}{
		{
			name:   "無効な認可コード",
			code:   "expired-code",
			user:   map[string]interface{}{"id": 1, "login": "a"},
			emails: []map[string]interface{}{{"email": "a@example.com", "primary": true, "verified": true}},
		},
		{
			name:   "未確認のプライマリアドレス",
			code:   "good-code",
			user:   map[string]interface{}{"id": 1, "login": "a"},
			emails: []map[string]interface{}{{"email": "a@example.com", "primary": true, "verified": false}},
		},
		{
			name:   "メールアドレスなし",
			code:   "good-code",
			user:   map[string]interface{}{"id": 1, "login": "a"},
			emails: []map[string]interface{}{},
		},
		{
			name:   "IDなし",
			code:   "good-code",
			user:   map[string]interface{}{"login": "a"},
			emails: []map[string]interface{}{{"email": "a@example.com", "primary": true, "verified": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newGitHubServer(t, tt.user, tt.emails)
			if _, err := newTestGitHubProvider(server).ExchangeCode(context.Background(), tt.code); err == nil {
				t.Fatal("expected error from ExchangeCode")
			}
		})
	}
}
