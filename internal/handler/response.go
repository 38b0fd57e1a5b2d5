package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/unihub/internal/middleware"
	"github.com/hitoshi/unihub/internal/model"
)

// maxRequestBodySize はリクエストボディの上限。画像を直接添付する投稿を受け付けられる大きさにする。
const maxRequestBodySize = 8 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをデコードする。失敗した場合はINVALID_INPUTを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return model.NewInvalidInputError("リクエストボディが大きすぎます")
		case errors.Is(err, io.EOF):
			return model.NewInvalidInputError("リクエストボディが空です")
		default:
			return model.NewInvalidInputError("リクエストボディの解析に失敗しました")
		}
	}
	return nil
}

// requestUserID はIDミドルウェアが設定したユーザーIDを返す。
func requestUserID(r *http.Request) string {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		return middleware.AnonymousUserID
	}
	return userID
}

// parseCollege はクエリのカレッジ指定を解釈する。空の場合は絞り込みなしとしてokにfalseを返す。
func parseCollege(r *http.Request) (college model.College, ok bool, err error) {
	v := r.URL.Query().Get("college")
	if v == "" {
		return "", false, nil
	}
	college = model.College(v)
	if !college.Valid() {
		return "", false, model.NewInvalidInputError("不明なカレッジです: " + v)
	}
	return college, true, nil
}
