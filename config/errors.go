package config

import "fmt"

// ErrorCode 配置错误码。
type ErrorCode string

const (
	// ErrInvalidValue 字段取值非法。
	ErrInvalidValue ErrorCode = "INVALID_VALUE"
	// ErrMissingValue 必填字段缺失。
	ErrMissingValue ErrorCode = "MISSING_VALUE"
)

// Error 结构化配置错误：错误码 + 字段路径 + 说明 + 底层原因。
type Error struct {
	Code    ErrorCode `json:"code"`
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError 创建配置错误。
func NewError(code ErrorCode, field, message string) *Error {
	return &Error{Code: code, Field: field, Message: message}
}

// WithCause 附加底层原因。
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}
