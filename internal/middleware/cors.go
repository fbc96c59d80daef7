package middleware

import (
	"net/http"
	"strings"
)

// NewCORSMiddleware はフロントエンドのオリジンに対するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、リクエストのOriginが一致した場合のみ
// そのオリジンを返す。credentials送信と共存するため、ワイルドカード(*)は使用しない。
// クイズ生成の利用上限をクライアントが読めるよう、Retry-Afterを公開ヘッダーに含める。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			if origin := matchOrigin(origins, r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Expose-Headers", "Retry-After")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// matchOrigin はOriginヘッダーが許可リストに含まれる場合にそのオリジンを返す。
// Originヘッダーのないリクエスト（同一オリジンやサーバー間通信）には先頭のオリジンを返す。
func matchOrigin(origins []string, origin string) string {
	if len(origins) == 0 {
		return ""
	}
	if origin == "" {
		return origins[0]
	}
	for _, o := range origins {
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}
