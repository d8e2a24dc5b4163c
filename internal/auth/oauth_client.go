package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	oauthHTTPTimeout = 10 * time.Second

	// IdPのレスポンスはこのサイズまでしか読まない
	maxOAuthResponseBytes = 1 << 20
	maxOAuthErrorSnippet  = 256
)

// oauthClient は認可コードフローのトークン交換とAPI呼び出しをまとめたHTTPクライアント。
// GoogleとGitHubのプロバイダーが共有する。
type oauthClient struct {
	clientID     string
	clientSecret string
	redirectURL  string
	tokenURL     string

	// apiHeader はユーザー情報APIへのリクエストに付与するヘッダー。
	apiHeader http.Header
	http      *http.Client
}

func newOAuthClient(clientID, clientSecret, redirectURL, tokenURL string, apiHeader http.Header) *oauthClient {
	return &oauthClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURL:  redirectURL,
		tokenURL:     tokenURL,
		apiHeader:    apiHeader,
		http:         &http.Client{Timeout: oauthHTTPTimeout},
	}
}

// authCodeURL は認可エンドポイントのURLを組み立てる。
// client_id、redirect_uri、response_type、stateは共通で付与する。
func (c *oauthClient) authCodeURL(authURL, state string, extra url.Values) string {
	params := url.Values{
		"client_id":     {c.clientID},
		"redirect_uri":  {c.redirectURL},
		"response_type": {"code"},
		"state":         {state},
	}
	for k, v := range extra {
		params[k] = v
	}
	return authURL + "?" + params.Encode()
}

// oauthTokenResponse はトークンエンドポイントのレスポンス。
// GitHubは失敗時も200でerrorフィールドを返す。
type oauthTokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// exchange は認可コードをアクセストークンに交換する。
func (c *oauthClient) exchange(ctx context.Context, code string) (string, error) {
	form := url.Values{
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"redirect_uri":  {c.redirectURL},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tr oauthTokenResponse
	if err := c.do(req, &tr); err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if tr.Error != "" {
		return "", fmt.Errorf("token endpoint returned %s: %s", tr.Error, tr.ErrorDescription)
	}
	if tr.AccessToken == "" {
		return "", errors.New("empty access token in response")
	}

	return tr.AccessToken, nil
}

// getJSON はアクセストークン付きでAPIを呼び出し、JSONレスポンスをoutに読み込む。
func (c *oauthClient) getJSON(ctx context.Context, endpoint, accessToken string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.apiHeader {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(req, out)
}

func (c *oauthClient) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxOAuthResponseBytes)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(body, maxOAuthErrorSnippet))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
