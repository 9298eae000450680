package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, backend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidService = "INVALID_SERVICE"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeBackendFailed  = "BACKEND_FAILED"
	ErrCodeUnsafeURL      = "UNSAFE_URL"
	ErrCodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication is required.",
		Category: "auth",
		Action:   "Please log in.",
	}
}

// NewInvalidServiceError は未対応のデータソース種別エラーを生成する。
func NewInvalidServiceError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidService,
		Message:  fmt.Sprintf("Invalid service: %s", service),
		Category: "validation",
		Action:   "Choose one of GOOGLE_DRIVE, DROPBOX, NOTION or ONE_DRIVE.",
	}
}

// NewInvalidRequestError はリクエスト内容の不備エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Check the form and try again.",
	}
}

// NewUnsafeURLError はバックエンドが返したURLが安全でない場合のエラーを生成する。
func NewUnsafeURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsafeURL,
		Message:  fmt.Sprintf("Refusing to open URL: %s", reason),
		Category: "backend",
		Action:   "Contact the administrator of the backend service.",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}
