package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是返回给客户端的机器可读错误码。
type Code string

const (
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeInvalidInput        Code = "INVALID_INPUT"
	CodeUnauthorized        Code = "ACCESS_UNAUTHORIZED"
	CodeNotFound            Code = "RESOURCE_NOT_FOUND"
	CodeConflict            Code = "RESOURCE_CONFLICT"
	CodeInsufficientStorage Code = "INSUFFICIENT_STORAGE"
	CodeInternal            Code = "INTERNAL_SERVER_ERROR"
)

// Error 携带 HTTP 状态码与错误码，供 API 层直接序列化。
type Error struct {
	StatusCode int
	Code       Code
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func BadRequest(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: CodeBadRequest, Message: message}
}

func InvalidInput(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: CodeInvalidInput, Message: message}
}

func Unauthorized(message string) *Error {
	return &Error{StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized, Message: message}
}

func NotFound(message string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{StatusCode: http.StatusConflict, Code: CodeConflict, Message: message}
}

// InsufficientStorage 表示配额校验失败。状态码沿用 400 而不是 507。
func InsufficientStorage(message string) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Code: CodeInsufficientStorage, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{StatusCode: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
}

// From 将任意错误归一化为 *Error，未知错误一律按 500 处理。
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("Internal server error", err)
}
