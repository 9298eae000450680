package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vishanth10/supabase-traversaal/internal/auth"
	"github.com/vishanth10/supabase-traversaal/internal/backend"
	"github.com/vishanth10/supabase-traversaal/internal/config"
	"github.com/vishanth10/supabase-traversaal/internal/dashboard"
	"github.com/vishanth10/supabase-traversaal/internal/database"
	"github.com/vishanth10/supabase-traversaal/internal/handler"
	"github.com/vishanth10/supabase-traversaal/internal/identity"
	"github.com/vishanth10/supabase-traversaal/internal/logger"
	"github.com/vishanth10/supabase-traversaal/internal/metrics"
	"github.com/vishanth10/supabase-traversaal/internal/middleware"
	"github.com/vishanth10/supabase-traversaal/internal/repository"
	"github.com/vishanth10/supabase-traversaal/internal/security"
	"github.com/vishanth10/supabase-traversaal/internal/worker/cleanup"
)

// identityTimeout はIdP呼び出しのタイムアウト。
const identityTimeout = 15 * time.Second

// writeTimeout はバックエンド呼び出しを含むリクエストの書き込みタイムアウトを返す。
// バックエンドのタイムアウトが無制限(0)なら書き込みも無制限にする。
func writeTimeout(backendTimeout time.Duration) time.Duration {
	if backendTimeout <= 0 {
		return 0
	}
	return backendTimeout + 15*time.Second
}

// safeClientFactory はSSRF防止機能付きHTTPクライアントを生成する。
type safeClientFactory interface {
	NewSafeClient(timeout time.Duration) *http.Client
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 外部クライアント
	urlGuard := security.NewURLGuard()
	idp := identity.NewClient(identity.Config{
		URL:        cfg.SupabaseURL,
		AnonKey:    cfg.SupabaseAnonKey,
		JWTSecret:  cfg.SupabaseJWTSecret,
		HTTPClient: identityHTTPClient(cfg.SupabaseURL, urlGuard),
	})
	slog.Info("identity provider configured",
		slog.String("url", cfg.SupabaseURL),
		slog.Bool("local_jwt_verification", idp.VerifiesLocally()),
	)
	backendClient := backend.NewClient(
		cfg.BackendBaseURL,
		&http.Client{Timeout: cfg.BackendTimeout},
		slog.Default(),
		collector,
	)

	// 4. ドメインサービス
	sessionRepo := repository.NewPostgresSessionRepo(db)
	events := auth.NewEvents(collector)
	authService := auth.NewService(
		idp, sessionRepo, events, security.NewTextSanitizer(),
		auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
			CallbackURL:   cfg.OAuthCallbackURL,
			CheckTimeout:  cfg.SessionCheckTimeout,
		},
	)

	boards := dashboard.NewStore()
	events.AddListener(boards.HandleEvent)
	dashboardService := dashboard.NewService(backendClient, urlGuard)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionChecker:    authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Events: events,

		DashboardService: dashboardService,
		Boards:           boards,
	})

	// 6. HTTPサーバーの起動
	// SSEのハンドラーは自身で書き込み期限を解除する。
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.BackendTimeout),
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}
	// SSE接続はShutdownで閉じられないため、ベースコンテキストをキャンセルして終了させる
	server.RegisterOnShutdown(cancelBase)

	// 期限切れでSIGNED_OUTが発行されないセッションのBoardを破棄する
	go boards.RunEviction(baseCtx, cfg.SessionCleanupInterval, time.Duration(cfg.SessionMaxAge)*time.Second)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// identityHTTPClient はIdP用のHTTPクライアントを返す。
// 公開エンドポイント（https）の場合はSSRF防止機能付きのクライアントを使う。
// ローカル開発のSupabase（http://localhost）はプライベートアドレスのため通常のクライアントを使う。
func identityHTTPClient(supabaseURL string, guard safeClientFactory) *http.Client {
	if strings.HasPrefix(supabaseURL, "https://") {
		return guard.NewSafeClient(identityTimeout)
	}
	return &http.Client{Timeout: identityTimeout}
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// メインgoroutineで実行（ブロッキング）
	cleanupJob.RunEvery(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
