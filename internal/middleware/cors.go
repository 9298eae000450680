package middleware

import "net/http"

// corsExposedHeaders はブラウザのスクリプトから参照できるレスポンスヘッダー。
// レート制限時の待機秒数をスクリプトから読めるようにする。
const corsExposedHeaders = "Retry-After"

// NewCORSMiddleware は /api 配下のJSONエンドポイント用のCORSミドルウェアを返す。
// Cookieを送るためワイルドカード(*)は使わず、許可するオリジンは1つに固定する。
// プリフライトには204で応答する。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
			h.Set("Access-Control-Expose-Headers", corsExposedHeaders)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
