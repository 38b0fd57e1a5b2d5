// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/unihub/internal/model"
)

// UserHeader は操作するユーザーを明示するリクエストヘッダー。
// 同じ端末で利用者を切り替える画面が使う。
const UserHeader = "X-UniHub-User"

// AnonymousUserID は現在のユーザーが決まらない場合に使うID。
const AnonymousUserID = "anonymous"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// CurrentUserFinder は端末の現在のユーザーを返す。
// user.Serviceの部分集合として定義する。
type CurrentUserFinder interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// NewIdentityMiddleware はリクエストを行うユーザーIDをコンテキストに注入するミドルウェアを返す。
// UserHeaderがあればその値を、なければストアの現在のユーザーを使う。
// 認証は行わない。ユーザーIDはレート制限とログの単位にのみ使われる。
func NewIdentityMiddleware(finder CurrentUserFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID == "" {
				u, err := finder.CurrentUser(r.Context())
				if err != nil {
					slog.Error("failed to resolve current user",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				userID = AnonymousUserID
				if u != nil {
					userID = u.ID
				}
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// IDミドルウェアを通過したリクエストでのみ有効。
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
