package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/vishanth10/supabase-traversaal/internal/middleware"
	"github.com/vishanth10/supabase-traversaal/internal/view"
)

// defaultUploadMaxBytes はリクエストボディの上限（アップロードを含む）。
const defaultUploadMaxBytes = 32 << 20

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionChecker    middleware.SessionChecker
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	UploadMaxBytes    int64

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	Events      EventSubscriber

	// ダッシュボード
	DashboardService DashboardServiceInterface
	Boards           BoardStore
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → RequestSize → CSRF
//	  公開画面:         AuthRateLimit（サインアップ・ログインの送信のみ）
//	  保護画面:         Guard → RateLimit(General)
//	  /api/*:          CORS
//
// /health と /metrics はCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := deps.UploadMaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultUploadMaxBytes
	}

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	dashboardHandler := NewDashboardHandler(deps.DashboardService, deps.Boards)
	eventsHandler := NewSessionEventsHandler(deps.SessionChecker, deps.Events)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.RequestSize(maxBytes))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		// --- 認証不要の画面 ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Get("/", authHandler.LoginPage)
			r.Get("/login", authHandler.LoginPage)
			r.Post("/login", authHandler.Login)
			r.Get("/signup", authHandler.SignUpPage)
			r.Post("/signup", authHandler.SignUp)
		})

		// OAuthフロー
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google", authHandler.GoogleLogin)
			r.Get("/callback", authHandler.Callback)
		})

		// --- JSON API ---
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
			r.Get("/session", authHandler.Session)
			r.Get("/session/events", eventsHandler.Stream)
		})

		// --- 認証が必要な画面 ---
		// ミドルウェアスタック: Guard → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewGuardMiddleware(deps.SessionChecker, view.Loading()))

			r.Get("/dashboard", dashboardHandler.Show)
			r.Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Post("/dashboard/connect", dashboardHandler.Connect)
				r.Post("/dashboard/data-sources", dashboardHandler.ListDataSources)
				r.Post("/dashboard/files", dashboardHandler.ListFiles)
				r.Post("/dashboard/uploaded-files", dashboardHandler.ListUploadedFiles)
				r.Post("/dashboard/search", dashboardHandler.Search)
				r.Post("/dashboard/upload", dashboardHandler.Upload)
			})
		})
	})

	return r
}
