package api

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Error 错误类型（带堆栈）
type Error struct {
	Code    ErrorCode
	Message string
	Stack   []string // 调用堆栈
	Cause   error    // 原始错误
}

// ErrorCode 错误码
type ErrorCode string

const (
	ErrCodeConfiguration      ErrorCode = "CONFIGURATION"       // 连接配置无效
	ErrCodeUnsupportedBackend ErrorCode = "UNSUPPORTED_BACKEND" // URL scheme 没有对应的后端
	ErrCodeConnection         ErrorCode = "CONNECTION"          // 后端不可达或连接建立失败
	ErrCodeTransaction        ErrorCode = "TRANSACTION"
	ErrCodeInvalidParam       ErrorCode = "INVALID_PARAM"
	ErrCodeClosed             ErrorCode = "CLOSED"
	ErrCodeInternal           ErrorCode = "INTERNAL"
)

// Error 接口实现
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *Error) Unwrap() error {
	return e.Cause
}

// StackTrace 返回调用堆栈
func (e *Error) StackTrace() []string {
	return e.Stack
}

// NewError 创建错误
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(3),
		Cause:   cause,
	}
}

// WrapError 包装错误
func WrapError(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	// 如果已经是我们的错误类型，保留原有堆栈
	if apiErr, ok := err.(*Error); ok {
		return &Error{
			Code:    code,
			Message: message,
			Stack:   apiErr.Stack,
			Cause:   apiErr,
		}
	}

	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStackTrace(3),
		Cause:   err,
	}
}

// NewConfigurationError 创建配置错误
func NewConfigurationError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeConfiguration,
		Message: message,
		Stack:   captureStackTrace(3),
		Cause:   cause,
	}
}

// NewConnectionError 创建连接错误
func NewConnectionError(message string, cause error) *Error {
	return &Error{
		Code:    ErrCodeConnection,
		Message: message,
		Stack:   captureStackTrace(3),
		Cause:   cause,
	}
}

// CaptureStack returns the call stack of its caller, skipping skip
// additional frames. Used to attach call-site context to misuse warnings.
func CaptureStack(skip int) []string {
	return captureStackTrace(3 + skip)
}

// captureStackTrace 捕获调用堆栈
func captureStackTrace(skip int) []string {
	pc := make([]uintptr, 32)
	n := runtime.Callers(skip, pc)

	if n == 0 {
		return []string{}
	}

	frames := runtime.CallersFrames(pc[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()

		fn := frame.Function
		file := frame.File
		line := frame.Line

		// 简化文件路径
		if idx := strings.LastIndex(file, "/"); idx != -1 {
			file = file[idx+1:]
		}

		// 提取函数名（去掉包路径）
		if idx := strings.LastIndex(fn, "/"); idx != -1 {
			fn = fn[idx+1:]
		}

		if fn != "" {
			stack = append(stack, fmt.Sprintf("  at %s (%s:%d)", fn, file, line))
		}
		if !more {
			break
		}
	}

	return stack
}

// IsErrorCode 检查错误码（沿错误链查找）
func IsErrorCode(err error, code ErrorCode) bool {
	var apiErr *Error
	for err != nil {
		if !errors.As(err, &apiErr) {
			return false
		}
		if apiErr.Code == code {
			return true
		}
		err = apiErr.Cause
	}
	return false
}

// GetErrorCode 获取错误码
func GetErrorCode(err error) ErrorCode {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsConfigurationError reports whether err is an invalid or unsupported
// connection configuration.
func IsConfigurationError(err error) bool {
	return IsErrorCode(err, ErrCodeConfiguration) || IsErrorCode(err, ErrCodeUnsupportedBackend)
}

// IsConnectionError reports whether err is a failed connection attempt.
func IsConnectionError(err error) bool {
	return IsErrorCode(err, ErrCodeConnection)
}
