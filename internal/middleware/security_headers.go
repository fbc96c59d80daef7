package middleware

import "net/http"

// apiContentSecurityPolicy はJSONとWebSocketのみを返すAPIサーバー向けのCSP。
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// クイズや招待コードはユーザーごとのデータのため、共有キャッシュに保存させない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", apiContentSecurityPolicy)
			h.Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
