// Package auth はIdPセッションのサーバー側キャッシュと、その変更通知を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vishanth10/supabase-traversaal/internal/identity"
	"github.com/vishanth10/supabase-traversaal/internal/model"
	"github.com/vishanth10/supabase-traversaal/internal/repository"
)

// ProviderGoogle はGoogleによるOAuthサインインのプロバイダー名。
const ProviderGoogle = "google"

const (
	// refreshSkew はアクセストークンの期限をこれだけ早めに扱う。
	refreshSkew = 30 * time.Second
	// refreshTimeout はバックグラウンドで継続するリフレッシュの上限時間。
	refreshTimeout = 30 * time.Second
)

// ErrSessionNotFound はセッションが存在しないか期限切れであることを表す。
var ErrSessionNotFound = errors.New("session not found or expired")

// State はセッション確認の結果。
type State int

const (
	// StateChecking は確認が完了していないことを表す。
	StateChecking State = iota
	// StateAuthenticated は有効なセッションが存在することを表す。
	StateAuthenticated
	// StateAnonymous はセッションが存在しないことを表す。
	StateAnonymous
)

// String はログ出力用の名称を返す。
func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IdentityProvider はIdPのインターフェース。identity.Clientが実装する。
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*identity.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.TokenSet, error)
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*identity.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenSet, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
}

// DisplayNameSanitizer は表示名からマークアップを除去する。
type DisplayNameSanitizer interface {
	SanitizeDisplayName(raw string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int           // セッション有効期間（秒）
	CallbackURL   string        // OAuthフロー完了後に戻る固定URL
	CheckTimeout  time.Duration // Checkがリフレッシュの完了を待つ上限
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	idp         IdentityProvider
	sessionRepo repository.SessionRepository
	events      *Events
	sanitizer   DisplayNameSanitizer
	config      ServiceConfig
	refreshes   singleflight.Group
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	idp IdentityProvider,
	sessionRepo repository.SessionRepository,
	events *Events,
	sanitizer DisplayNameSanitizer,
	config ServiceConfig,
) *Service {
	if events == nil {
		events = NewEvents(nil)
	}
	return &Service{
		idp:         idp,
		sessionRepo: sessionRepo,
		events:      events,
		sanitizer:   sanitizer,
		config:      config,
		now:         time.Now,
	}
}

// Events はセッション変更通知の配信元を返す。
func (s *Service) Events() *Events {
	return s.events
}

// SignUp はユーザーを登録する。
// IdPがメール確認を要求する場合はセッションを発行せずnilを返す。
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	if s.sanitizer != nil {
		displayName = s.sanitizer.SanitizeDisplayName(displayName)
	}

	result, err := s.idp.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	if result.Tokens == nil {
		slog.Info("user signed up, awaiting email confirmation",
			slog.String("user_id", userID(result.User)),
		)
		return nil, nil
	}

	return s.startSession(ctx, result.Tokens)
}

// SignIn はメールアドレスとパスワードでサインインし、セッションを発行する。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	tokens, err := s.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	return s.startSession(ctx, tokens)
}

// BeginOAuth はIdPがホストするOAuthフローの開始URLとPKCEのcode_verifierを返す。
func (s *Service) BeginOAuth(provider string) (authURL, verifier string) {
	pkce := NewPKCE()
	return s.idp.AuthorizeURL(provider, s.config.CallbackURL, pkce.Challenge), pkce.Verifier
}

// CompleteOAuth はコールバックで受け取った認可コードを交換し、セッションを発行する。
func (s *Service) CompleteOAuth(ctx context.Context, code, verifier string) (*model.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}
	if verifier == "" {
		return nil, fmt.Errorf("code verifier is missing")
	}

	tokens, err := s.idp.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return s.startSession(ctx, tokens)
}

// SignOut はIdP側とサーバー側のセッションを破棄する。
// IdPの呼び出しに失敗してもサーバー側のセッションは破棄し、そのエラーを返す。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil
	}

	var providerErr error
	if err := s.idp.SignOut(ctx, session.AccessToken); err != nil {
		providerErr = fmt.Errorf("failed to sign out at identity provider: %w", err)
	}

	if err := s.destroy(ctx, session); err != nil {
		return err
	}

	slog.Info("user signed out", slog.String("user_id", session.UserID))
	return providerErr
}

// CurrentUser はセッションのアクセストークンでIdPから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	state, session := s.Check(ctx, sessionID)
	if state != StateAuthenticated {
		return nil, ErrSessionNotFound
	}

	user, err := s.idp.GetUser(ctx, session.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return user, nil
}

// Check はセッションの状態を確認する。
// アクセストークンが期限切れの場合はリフレッシュし、CheckTimeout以内に完了しなければ
// StateCheckingを返す。リフレッシュはバックグラウンドで継続し、結果は次回のCheckに反映される。
func (s *Service) Check(ctx context.Context, sessionID string) (State, *model.Session) {
	if sessionID == "" {
		return StateAnonymous, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		slog.Error("failed to find session", slog.String("error", err.Error()))
		return StateAnonymous, nil
	}
	if session == nil {
		return StateAnonymous, nil
	}

	if !session.TokenExpired(s.now(), refreshSkew) {
		return StateAuthenticated, session
	}

	results := s.refreshes.DoChan(session.ID, func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return s.refresh(refreshCtx, session)
	})

	var timeout <-chan time.Time
	if s.config.CheckTimeout > 0 {
		timer := time.NewTimer(s.config.CheckTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case res := <-results:
		if res.Err != nil {
			return StateAnonymous, nil
		}
		return StateAuthenticated, res.Val.(*model.Session)
	case <-timeout:
		return StateChecking, nil
	case <-ctx.Done():
		return StateChecking, nil
	}
}

// refresh はアクセストークンを更新する。失敗した場合はセッションを破棄する。
func (s *Service) refresh(ctx context.Context, session *model.Session) (*model.Session, error) {
	tokens, err := s.idp.Refresh(ctx, session.RefreshToken)
	if err != nil {
		attrs := []any{
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		}
		if pe, ok := identity.AsProviderError(err); ok {
			attrs = append(attrs, slog.Bool("unauthorized", pe.IsUnauthorized()))
		}
		slog.Warn("token refresh failed, destroying session", attrs...)

		if derr := s.destroy(ctx, session); derr != nil {
			slog.Error("failed to destroy session", slog.String("error", derr.Error()))
		}
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	if tokens.User != nil && tokens.User.ID != session.UserID {
		if derr := s.destroy(ctx, session); derr != nil {
			slog.Error("failed to destroy session", slog.String("error", derr.Error()))
		}
		return nil, fmt.Errorf("refreshed token belongs to a different user")
	}

	if err := s.sessionRepo.UpdateTokens(ctx, session.ID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
		return nil, fmt.Errorf("failed to save refreshed tokens: %w", err)
	}

	refreshed := *session
	refreshed.AccessToken = tokens.AccessToken
	refreshed.RefreshToken = tokens.RefreshToken
	refreshed.TokenExpiresAt = tokens.ExpiresAt
	refreshed.UpdatedAt = s.now()

	s.events.Publish(Event{Type: EventTokenRefreshed, SessionID: session.ID, UserID: session.UserID})
	slog.Info("access token refreshed", slog.String("user_id", session.UserID))
	return &refreshed, nil
}

// startSession はトークン一式からセッションを作成し永続化する。
func (s *Service) startSession(ctx context.Context, tokens *identity.TokenSet) (*model.Session, error) {
	if tokens == nil || tokens.User == nil {
		return nil, fmt.Errorf("token set has no user")
	}

	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:             sessionID,
		UserID:         tokens.User.ID,
		Email:          tokens.User.Email,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
		ExpiresAt:      now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.events.Publish(Event{Type: EventSignedIn, SessionID: session.ID, UserID: session.UserID})
	slog.Info("user signed in", slog.String("user_id", session.UserID))
	return session, nil
}

// destroy はサーバー側のセッションを削除し、SIGNED_OUTを通知する。
func (s *Service) destroy(ctx context.Context, session *model.Session) error {
	if err := s.sessionRepo.DeleteByID(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.events.Publish(Event{Type: EventSignedOut, SessionID: session.ID, UserID: session.UserID})
	return nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}
