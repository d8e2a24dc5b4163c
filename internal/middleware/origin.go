package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/finwise/internal/model"
)

// NewOriginCheckMiddleware はCookieで認証する状態変更リクエストのOriginを検証するミドルウェアを返す。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証をスキップする。
// Originヘッダーが付与されていて許可オリジンと一致しない場合は403 Forbiddenを返す。
// Originヘッダーの無いリクエスト（ブラウザ以外のクライアント）はそのまま通す。
func NewOriginCheckMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	allowed := strings.TrimRight(allowedOrigin, "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			origin := r.Header.Get("Origin")
			if origin == "" || strings.TrimRight(origin, "/") == allowed {
				next.ServeHTTP(w, r)
				return
			}

			slog.Warn("origin check failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("origin", origin),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError("Origin not allowed"))
		})
	}
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
