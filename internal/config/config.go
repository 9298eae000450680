// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Identity provider (Supabase)
	SupabaseURL       string `env:"SUPABASE_URL,required,notEmpty"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY,required,notEmpty"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`
	// OAuthCallbackURL はIdPのOAuthフロー完了後に戻る固定URL。
	// 未設定の場合は BASE_URL + "/auth/callback" を使用する。
	OAuthCallbackURL string `env:"OAUTH_CALLBACK_URL"`

	// Backend
	BackendBaseURL string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:3200"`
	// BackendTimeout はバックエンド呼び出しの上限時間。0は無制限。
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"0s"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"604800"`
	SessionCheckTimeout    time.Duration `env:"SESSION_CHECK_TIMEOUT" envDefault:"2s"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Rate Limit (req/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH" envDefault:"10"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL,required,notEmpty"`

	// Cookie
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.BackendBaseURL = strings.TrimRight(cfg.BackendBaseURL, "/")
	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")

	if cfg.OAuthCallbackURL == "" {
		cfg.OAuthCallbackURL = cfg.BaseURL + "/auth/callback"
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive: %d", cfg.SessionMaxAge)
	}
	if cfg.BackendTimeout < 0 {
		return nil, fmt.Errorf("BACKEND_TIMEOUT must not be negative: %s", cfg.BackendTimeout)
	}
	if cfg.SessionCleanupInterval <= 0 {
		return nil, fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive: %s", cfg.SessionCleanupInterval)
	}
	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitAuth <= 0 {
		return nil, fmt.Errorf("rate limits must be positive")
	}

	return cfg, nil
}
