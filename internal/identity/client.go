// Package identity はIdP（Supabase Auth / GoTrue）のREST APIクライアントを提供する。
// セッションの発行・更新・破棄はIdPが所有し、このパッケージは呼び出しの窓口のみを担う。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vishanth10/supabase-traversaal/internal/model"
)

const (
	authPathPrefix = "/auth/v1"

	// maxResponseSize はIdPレスポンスとして読み込む最大バイト数。
	maxResponseSize = 1 << 20
)

// Config はIdPクライアントの設定。
type Config struct {
	// URL はSupabaseプロジェクトのURL（例: https://xxxx.supabase.co）。
	URL string
	// AnonKey は全リクエストのapikeyヘッダーに付与する公開キー。
	AnonKey string
	// JWTSecret が設定されている場合、アクセストークンの署名をHS256で検証する。
	JWTSecret string
	// HTTPClient が nil の場合は http.DefaultClient を使用する。
	HTTPClient *http.Client
}

// TokenSet はIdPが発行したトークン一式を表す。
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *model.User
}

// SignUpResult はサインアップの結果を表す。
// メール確認が必要な場合はTokensがnilになる。
type SignUpResult struct {
	User   *model.User
	Tokens *TokenSet
}

// Client はSupabase Auth REST APIのクライアント。
type Client struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient はClientを生成する。
func NewClient(config Config) *Client {
	config.URL = strings.TrimRight(config.URL, "/")
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// --- レスポンス型 ---

// userResponse はGoTrueのユーザーオブジェクト。
type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// tokenResponse はGoTrueのトークンエンドポイントのレスポンス。
type tokenResponse struct {
	AccessToken  string        `json:"access_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	RefreshToken string        `json:"refresh_token"`
	User         *userResponse `json:"user"`
}

// signUpResponse はサインアップのレスポンス。
// メール確認が有効な場合はユーザーオブジェクトそのもの、無効な場合はトークンレスポンスが返る。
type signUpResponse struct {
	tokenResponse
	ID    string `json:"id"`
	Email string `json:"email"`
	// 一部のバージョンは {"user": ..., "session": ...} 形式で返す
	Session *tokenResponse `json:"session"`
}

// SignUp はメールアドレスとパスワードでユーザーを登録する。
// POST /auth/v1/signup
func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*SignUpResult, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data": map[string]string{
			"display_name": displayName,
		},
	}

	var resp signUpResponse
	if err := c.do(ctx, http.MethodPost, "/signup", nil, body, "", &resp); err != nil {
		return nil, err
	}

	result := &SignUpResult{}
	switch {
	case resp.AccessToken != "":
		tokens, err := c.toTokenSet(&resp.tokenResponse)
		if err != nil {
			return nil, err
		}
		result.Tokens = tokens
		result.User = tokens.User
	case resp.Session != nil && resp.Session.AccessToken != "":
		if resp.Session.User == nil {
			resp.Session.User = resp.User
		}
		tokens, err := c.toTokenSet(resp.Session)
		if err != nil {
			return nil, err
		}
		result.Tokens = tokens
		result.User = tokens.User
	case resp.User != nil:
		result.User = toUser(resp.User)
	case resp.ID != "":
		result.User = &model.User{ID: resp.ID, Email: resp.Email, DisplayName: displayName}
	default:
		return nil, fmt.Errorf("signup response contains neither user nor session")
	}

	return result, nil
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
// POST /auth/v1/token?grant_type=password
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*TokenSet, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	return c.token(ctx, "password", body)
}

// AuthorizeURL はIdPがホストするOAuthフロー（Google等）の開始URLを生成する。
// redirectToはフロー完了後に戻る固定のコールバックURL。
// codeChallengeはPKCEのS256チャレンジ。
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{
		"provider":    {provider},
		"redirect_to": {redirectTo},
	}
	if codeChallenge != "" {
		params.Set("code_challenge", codeChallenge)
		params.Set("code_challenge_method", "s256")
	}
	return c.config.URL + authPathPrefix + "/authorize?" + params.Encode()
}

// ExchangeCode はOAuthコールバックで受け取った認可コードをトークンに交換する。
// POST /auth/v1/token?grant_type=pkce
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*TokenSet, error) {
	body := map[string]string{
		"auth_code":     authCode,
		"code_verifier": codeVerifier,
	}
	return c.token(ctx, "pkce", body)
}

// Refresh はリフレッシュトークンで新しいトークン一式を取得する。
// POST /auth/v1/token?grant_type=refresh_token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	body := map[string]string{
		"refresh_token": refreshToken,
	}
	return c.token(ctx, "refresh_token", body)
}

// SignOut はIdP側のセッションを破棄する。
// POST /auth/v1/logout
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, nil, accessToken, nil)
}

// GetUser はアクセストークンに紐づくユーザーを取得する。
// GET /auth/v1/user
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, accessToken, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("empty id in user response")
	}
	return toUser(&resp), nil
}

// token はトークンエンドポイントを呼び出す。
func (c *Client) token(ctx context.Context, grantType string, body any) (*TokenSet, error) {
	query := url.Values{"grant_type": {grantType}}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return nil, err
	}
	return c.toTokenSet(&resp)
}

// toTokenSet はトークンレスポンスをTokenSetに変換する。
// 有効期限は expires_at、expires_in、JWTのexpクレームの順に決定する。
func (c *Client) toTokenSet(resp *tokenResponse) (*TokenSet, error) {
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	claims, err := c.ParseAccessToken(resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("invalid access token: %w", err)
	}

	var expiresAt time.Time
	switch {
	case resp.ExpiresAt > 0:
		expiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		expiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	case claims.ExpiresAt != nil:
		expiresAt = claims.ExpiresAt.Time
	default:
		return nil, fmt.Errorf("token response has no expiry")
	}

	user := toUser(resp.User)
	if user == nil {
		user = &model.User{ID: claims.Subject, Email: claims.Email}
	}
	if user.ID == "" {
		return nil, fmt.Errorf("token response has no user id")
	}
	if claims.Subject != "" && claims.Subject != user.ID {
		return nil, fmt.Errorf("token subject %q does not match user %q", claims.Subject, user.ID)
	}

	return &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    expiresAt,
		User:         user,
	}, nil
}

// do はIdPにHTTPリクエストを送信し、2xx以外をProviderErrorに変換する。
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, accessToken string, out any) error {
	endpoint := c.config.URL + authPathPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.config.AnonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read identity provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newProviderError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse identity provider response: %w", err)
	}
	return nil
}

// toUser はGoTrueのユーザーオブジェクトをmodel.Userに変換する。
func toUser(u *userResponse) *model.User {
	if u == nil || u.ID == "" {
		return nil
	}
	user := &model.User{ID: u.ID, Email: u.Email}
	for _, key := range []string{"display_name", "full_name", "name"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			user.DisplayName = v
			break
		}
	}
	return user
}
