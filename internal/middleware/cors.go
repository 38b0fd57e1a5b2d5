package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// ComposerHeader は投稿作成画面を識別するリクエストヘッダー。
const ComposerHeader = "X-UniHub-Composer"

// NewCORSMiddleware は許可オリジンに対するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定できる。1つだけの場合は常にそのオリジンを返し、
// 複数の場合はリクエストのOriginが一致したときだけ返す。
// 画面側がUserHeaderとComposerHeaderを送れるよう許可ヘッダーに含める。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	allowOrigin := func(r *http.Request) string {
		if len(origins) == 1 {
			return origins[0]
		}
		if o := r.Header.Get("Origin"); slices.Contains(origins, o) {
			return o
		}
		return ""
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if o := allowOrigin(r); o != "" {
				h.Set("Access-Control-Allow-Origin", o)
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader+", "+ComposerHeader)
			h.Set("Access-Control-Expose-Headers", "Retry-After")
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
