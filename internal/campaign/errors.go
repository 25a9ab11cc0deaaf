package campaign

import (
	"errors"
	"fmt"
	"time"
)

// エラーコード
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeLimitExceeded   = "LIMIT_EXCEEDED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeValidationError = "VALIDATION_ERROR"
	CodeExtractionError = "EXTRACTION_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
)

// Error はクライアントへ返すエラー情報を保持します。
type Error struct {
	Code       string
	Message    string
	Err        error
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// asError は任意のエラーを *Error に変換します。
func asError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return newError(CodeInternalError, "unexpected error while processing the file", err)
}
