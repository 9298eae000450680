// Package model はドメインモデルを定義する。
package model

import "time"

// User はIdPで認証済みのユーザーを表す。
// IDはバックエンド呼び出し時のcustomer_idとしても使用する。
type User struct {
	ID          string
	Email       string
	DisplayName string
}

// Session はIdPが発行したセッションのサーバー側キャッシュを表す。
// IDはCookieに格納する不透明な値で、IdPのトークンとは無関係。
// 所有者はIdPであり、こちらが保持するのは期限切れの可能性がある読み取り専用コピー。
type Session struct {
	ID           string
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
	// TokenExpiresAt はアクセストークンの有効期限。過ぎたらリフレッシュする。
	TokenExpiresAt time.Time
	// ExpiresAt はサーバー側セッション（Cookie）の有効期限。
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenExpired はアクセストークンが期限切れかどうかを返す。
// skewだけ早めに期限切れとみなす。
func (s *Session) TokenExpired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(s.TokenExpiresAt)
}
