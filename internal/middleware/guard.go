// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/vishanth10/supabase-traversaal/internal/auth"
	"github.com/vishanth10/supabase-traversaal/internal/model"
)

const (
	// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
	SessionCookieName = "session_id"

	// LoginPath は未認証時のリダイレクト先。
	LoginPath = "/login"

	// HomePath は確認中に受けたGET以外のリクエストの戻り先。
	HomePath = "/dashboard"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
	sessionContextKey = contextKey("session")
)

// SessionChecker はセッション状態の確認に必要なインターフェース。
// auth.Serviceが実装する。
type SessionChecker interface {
	Check(ctx context.Context, sessionID string) (auth.State, *model.Session)
}

// NewGuardMiddleware は保護されたルートへのアクセスをセッション状態で振り分ける
// ミドルウェアを返す。
//   - 認証済み: ユーザーIDとセッションをコンテキストに注入して次へ渡す
//   - 未認証: /login へ303でリダイレクトする（htmxリクエストはHX-Redirect）
//   - 確認中: GET/HEADはloadingを200で描画し、Refreshヘッダーで再確認させる。
//     それ以外は再読み込みできないため /dashboard へ303でリダイレクトする
func NewGuardMiddleware(checker SessionChecker, loading templ.Component) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")

			state, session := checker.Check(r.Context(), SessionIDFromRequest(r))
			switch state {
			case auth.StateAuthenticated:
				setLogUserID(r.Context(), session.UserID)
				ctx := ContextWithSession(r.Context(), session)
				next.ServeHTTP(w, r.WithContext(ctx))

			case auth.StateChecking:
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					redirectTo(w, r, HomePath)
					return
				}
				w.Header().Set("Refresh", "1")
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				if err := loading.Render(r.Context(), w); err != nil {
					slog.Error("failed to render loading page", slog.String("error", err.Error()))
				}

			default:
				redirectTo(w, r, LoginPath)
			}
		})
	}
}

// redirectTo はpathへ移動させる。htmxリクエストはHX-Redirectで応答する。
func redirectTo(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// SessionIDFromRequest はCookieからセッションIDを取得する。存在しない場合は空文字を返す。
func SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ガードミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	return session, ok && session != nil
}

// ContextWithSession はコンテキストにセッションとそのユーザーIDを注入する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	ctx = context.WithValue(ctx, sessionContextKey, session)
	return ContextWithUserID(ctx, session.UserID)
}
