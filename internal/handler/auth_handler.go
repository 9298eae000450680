// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vishanth10/supabase-traversaal/internal/auth"
	"github.com/vishanth10/supabase-traversaal/internal/identity"
	"github.com/vishanth10/supabase-traversaal/internal/middleware"
	"github.com/vishanth10/supabase-traversaal/internal/model"
	"github.com/vishanth10/supabase-traversaal/internal/view"
)

const (
	// oauthVerifierCookie はPKCEのcode_verifierをコールバックまで保持するCookie。
	oauthVerifierCookie = "oauth_verifier"
	// oauthVerifierMaxAge はOAuthフローの有効期間（秒）。
	oauthVerifierMaxAge = 600

	dashboardPath = "/dashboard"
)

// 画面に表示する文言
const (
	MessageSignUpConfirm = "Check your email for the confirmation link."
	MessageUnexpected    = "An unexpected error occurred. Please try again."
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
// auth.Serviceが実装する。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error)
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	BeginOAuth(provider string) (authURL, verifier string)
	CompleteOAuth(ctx context.Context, code, verifier string) (*model.Session, error)
	SignOut(ctx context.Context, sessionID string) error
	CurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はサインアップ・ログイン・OAuth・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// SignUpPage はサインアップ画面を表示する。
// GET /signup
func (h *AuthHandler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, r, http.StatusOK, view.SignUpPage(view.SignUpForm{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}))
}

// SignUp はユーザーを登録し、結果のメッセージを表示する。
// 画面遷移はしない。IdPがトークンを返した場合はセッションCookieだけを設定する。
// POST /signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	form := view.SignUpForm{
		DisplayName: strings.TrimSpace(r.PostFormValue("display_name")),
		Email:       strings.TrimSpace(r.PostFormValue("email")),
		CSRFToken:   middleware.CSRFTokenFromContext(r.Context()),
	}
	password := r.PostFormValue("password")

	session, err := h.service.SignUp(r.Context(), form.Email, password, form.DisplayName)
	if err != nil {
		status, message := signUpFailure(err)
		form.Message = message
		renderHTML(w, r, status, view.SignUpPage(form))
		return
	}

	if session != nil {
		h.setSessionCookie(w, session.ID)
	}

	form.Message = MessageSignUpConfirm
	renderHTML(w, r, http.StatusOK, view.SignUpPage(form))
}

// LoginPage はログイン画面を表示する。
// GET /, GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	renderHTML(w, r, http.StatusOK, view.LoginPage(view.LoginForm{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}))
}

// Login はメールアドレスとパスワードでログインし、ダッシュボードへ移動する。
// IdPのエラー文言はそのまま表示する。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := view.LoginForm{
		Email:     strings.TrimSpace(r.PostFormValue("email")),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
	password := r.PostFormValue("password")

	if form.Email == "" || password == "" {
		form.Message = "Email and password are required."
		renderHTML(w, r, http.StatusBadRequest, view.LoginPage(form))
		return
	}

	session, err := h.service.SignIn(r.Context(), form.Email, password)
	if err != nil {
		if pe, ok := identity.AsProviderError(err); ok {
			slog.Warn("login rejected by identity provider", slog.Int("status", pe.Status))
			form.Message = pe.Message
			renderHTML(w, r, http.StatusUnauthorized, view.LoginPage(form))
			return
		}
		slog.Error("login failed", slog.String("error", err.Error()))
		form.Message = MessageUnexpected
		renderHTML(w, r, http.StatusInternalServerError, view.LoginPage(form))
		return
	}

	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// GoogleLogin はIdPがホストするGoogle OAuthフローへリダイレクトする。
// PKCEのcode_verifierはHTTP Only Cookieに保存する。
// GET /auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, verifier := h.service.BeginOAuth(auth.ProviderGoogle)

	http.SetCookie(w, &http.Cookie{
		Name:     oauthVerifierCookie,
		Value:    verifier,
		Path:     "/auth",
		MaxAge:   oauthVerifierMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// 認可コードをセッションに交換し、ダッシュボードへ移動する。失敗した場合はログに記録し画面に表示する。
// GET /auth/callback?code=xxx
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// code_verifierは一度きり
	http.SetCookie(w, &http.Cookie{
		Name:     oauthVerifierCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// IdPがエラーでリダイレクトしてきた場合
	if errCode := query.Get("error"); errCode != "" {
		message := query.Get("error_description")
		if message == "" {
			message = errCode
		}
		slog.Warn("oauth callback returned error",
			slog.String("error", errCode),
			slog.String("description", message),
		)
		renderHTML(w, r, http.StatusBadRequest, view.CallbackErrorPage(message))
		return
	}

	code := query.Get("code")
	if code == "" {
		slog.Warn("oauth callback without authorization code")
		renderHTML(w, r, http.StatusBadRequest, view.CallbackErrorPage("Missing authorization code."))
		return
	}

	verifierCookie, err := r.Cookie(oauthVerifierCookie)
	if err != nil || verifierCookie.Value == "" {
		slog.Warn("oauth callback without code verifier")
		renderHTML(w, r, http.StatusBadRequest, view.CallbackErrorPage("The sign-in flow expired. Please try again."))
		return
	}

	session, err := h.service.CompleteOAuth(r.Context(), code, verifierCookie.Value)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		if pe, ok := identity.AsProviderError(err); ok {
			renderHTML(w, r, http.StatusBadRequest, view.CallbackErrorPage(pe.Message))
			return
		}
		renderHTML(w, r, http.StatusInternalServerError, view.CallbackErrorPage(MessageUnexpected))
		return
	}

	h.setSessionCookie(w, session.ID)
	http.Redirect(w, r, dashboardPath, http.StatusSeeOther)
}

// Logout はIdPとサーバー側のセッションを破棄し、ログイン画面へ移動する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromRequest(r); sessionID != "" {
		if err := h.service.SignOut(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
}

// sessionResponse は現在のユーザーのJSON表現。
type sessionResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Session は現在のログインユーザー情報を返す。
// GET /api/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.CurrentUser(r.Context(), sessionID)
	if err != nil {
		pe, isProvider := identity.AsProviderError(err)
		if errors.Is(err, auth.ErrSessionNotFound) || (isProvider && pe.IsUnauthorized()) {
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
			return
		}
		slog.Error("failed to get current user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(sessionResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	})
}

// setSessionCookie はセッションCookieを設定する（HTTP Only）。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// signUpFailure はサインアップ失敗時のステータスと表示文言を返す。
func signUpFailure(err error) (int, string) {
	if pe, ok := identity.AsProviderError(err); ok {
		slog.Warn("sign up rejected by identity provider",
			slog.Int("status", pe.Status),
			slog.String("code", pe.Code),
		)
		return http.StatusBadRequest, "Error: " + pe.Message
	}
	slog.Error("unexpected sign up failure", slog.String("error", err.Error()))
	return http.StatusInternalServerError, MessageUnexpected
}
