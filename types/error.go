package types

import (
	"errors"
	"fmt"
)

// ErrorCode 中继、会话与 CLI 共用的错误码，同时写进 JSON 错误体
type ErrorCode string

const (
	// 中继端
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 请求体不是合法的 {"messages": [...]}
	ErrMethodNotAllowed   ErrorCode = "METHOD_NOT_ALLOWED"  // 只接受 POST 和 OPTIONS
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"        // JWT 校验失败
	ErrRateLimited        ErrorCode = "RATE_LIMITED"        // 网关 429 或本地限流
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"      // 网关 402
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"      // 网关其他非 2xx
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"    // 等待响应头超时
	ErrConfiguration      ErrorCode = "CONFIGURATION"       // 缺少网关密钥等
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"      // 兜底
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 依赖未就绪或已禁用

	// 会话端
	ErrSessionBusy   ErrorCode = "SESSION_BUSY"
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"
	ErrStreamAborted ErrorCode = "STREAM_ABORTED"
	ErrEmptyResponse ErrorCode = "EMPTY_RESPONSE"
)

// Error 带错误码的结构化错误。HTTPStatus 为 0 时由调用方按 Code 推导。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	msg := "[" + string(e.Code) + "] " + e.Message
	if e.Cause == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// 链式设置，均原地修改并返回 e

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError 返回链上第一个 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// GetErrorCode 链上没有 *Error 时返回空码
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}
