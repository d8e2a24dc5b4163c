package model

import "fmt"

// ErrorKind はエラーの分類を表す。
// HTTPステータスコードへの変換はトランスポート層（handler）が行う。
type ErrorKind int

const (
	// KindInternal は呼び出し側の入力に起因しない失敗（ストレージ、メール送信など）。
	KindInternal ErrorKind = iota
	// KindBadRequest は不正な入力またはビジネスルール違反。
	KindBadRequest
	// KindUnauthorized はアクセストークンの欠落・不正。
	KindUnauthorized
	// KindForbidden はリフレッシュトークンの欠落・不正・期限切れ。
	KindForbidden
	// KindNotFound はアカウントが存在しない。
	KindNotFound
	// KindConflict は一意性制約違反。
	KindConflict
	// KindValidation はリクエストスキーマの検証失敗。
	KindValidation
	// KindTooManyRequests はスロットリングによる拒否。
	KindTooManyRequests
)

// String はログ出力用の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindTooManyRequests:
		return "too_many_requests"
	default:
		return "internal"
	}
}

// FieldError はフィールド単位の検証エラーを表す。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind    // エラー分類
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, system
	Action   string       // ユーザー向け対処方法
	Details  []FieldError // 検証エラーの詳細（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewBadRequestError は不正リクエストエラーを生成する。
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Kind:     KindBadRequest,
		Code:     ErrCodeBadRequest,
		Message:  message,
		Category: "auth",
		Action:   "Check the request and try again.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewForbiddenError はアクセス拒否エラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewNotFoundError はリソース未検出エラーを生成する。
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeNotFound,
		Message:  message,
		Category: "auth",
		Action:   "Check the email address or create an account.",
	}
}

// NewConflictError は一意性違反エラーを生成する。
func NewConflictError(message string) *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeConflict,
		Message:  message,
		Category: "auth",
		Action:   "Sign in with the existing account or reset its password.",
	}
}

// NewValidationError はスキーマ検証エラーを生成する。
func NewValidationError(details []FieldError) *APIError {
	fields := ""
	for i, d := range details {
		if i > 0 {
			fields += ", "
		}
		fields += d.Field
	}
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("Validation failed for: %s", fields),
		Category: "validation",
		Action:   "Fix the highlighted fields and submit again.",
		Details:  details,
	}
}

// NewTooManyRequestsError はスロットリングエラーを生成する。
func NewTooManyRequestsError() *APIError {
	return &APIError{
		Kind:     KindTooManyRequests,
		Code:     ErrCodeTooManyRequests,
		Message:  "Too many requests for this email address.",
		Category: "system",
		Action:   "Wait a while before requesting another email.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、messageには一般的な文言を渡す。
func NewInternalError(message string) *APIError {
	return &APIError{
		Kind:     KindInternal,
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
		Action:   "Please try again later.",
	}
}
