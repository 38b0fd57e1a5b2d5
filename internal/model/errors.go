// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: moderation, validation, store, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePostRejected      = "POST_REJECTED"
	ErrCodeSubmissionPending = "SUBMISSION_PENDING"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeForbidden         = "FORBIDDEN"
)

// GenericRejectionReason は分類サービス自体が失敗した場合に表示する理由。
// 安全性判定の拒否と同じ扱いでユーザーに提示する（fail-closed）。
const GenericRejectionReason = "投稿内容を確認できませんでした。時間をおいて再度投稿してください。"

// NewPostRejectedError はモデレーションで拒否された投稿のエラーを生成する。
// reasonは分類サービスが返した理由をそのまま表示する。
func NewPostRejectedError(reason string) *APIError {
	if reason == "" {
		reason = GenericRejectionReason
	}
	return &APIError{
		Code:     ErrCodePostRejected,
		Message:  reason,
		Category: "moderation",
		Action:   "内容を修正してから再度投稿してください。",
	}
}

// NewSubmissionPendingError は審査中に重複して投稿しようとした場合のエラーを生成する。
func NewSubmissionPendingError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionPending,
		Message:  "前回の投稿を審査中です。",
		Category: "moderation",
		Action:   "審査が完了するまでお待ちください。",
	}
}

// NewInvalidInputError は入力値が不正な場合のエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewNotFoundError は参照先のエンティティが存在しない場合のエラーを生成する。
// ストアの変更系操作は存在しないIDに対して何もしないため、
// このエラーはハンドラー層で読み取り結果を確認した場合にのみ使われる。
func NewNotFoundError(kind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, id),
		Category: "store",
		Action:   "画面を更新してから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewForbiddenError は管理者限定の操作を一般ユーザーが実行した場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作は管理者のみ実行できます。",
		Category: "validation",
		Action:   "管理者に依頼してください。",
	}
}
