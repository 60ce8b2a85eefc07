package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType Provider 错误分类，用于日志和指标
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error" // 400
	ErrorTypeAuthentication ErrorType = "authentication_error"  // 401
	ErrorTypePermission     ErrorType = "permission_error"      // 403
	ErrorTypeNotFound       ErrorType = "not_found_error"       // 404
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"      // 429
	ErrorTypeAPI            ErrorType = "api_error"             // 5xx
	ErrorTypeOverloaded     ErrorType = "overloaded_error"      // 529
	ErrorTypeTimeout        ErrorType = "timeout_error"
	ErrorTypeEmptyResponse  ErrorType = "empty_response"
	ErrorTypeUnknown        ErrorType = "unknown_provider"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrEmptyResponse   = errors.New("provider returned no choices")
	ErrMissingModel    = errors.New("model is required")
)

// ProviderError 所有 Invoker 返回的统一错误
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		if e.Err != nil {
			return fmt.Sprintf("[%s][%s][%d] %s: %v", e.Provider, e.Type, e.StatusCode, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s][%s][%d] %s", e.Provider, e.Type, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s][%s] %s: %v", e.Provider, e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s][%s] %s", e.Provider, e.Type, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Reason 返回面向用户的简短错误原因
func (e *ProviderError) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Type)
}

// IsRetryable 判断错误是否可重试
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeAPI, ErrorTypeOverloaded, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// NewProviderError 创建 Provider 错误，按状态码分类
func NewProviderError(provider string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Type:       classify(statusCode, err),
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}

func classify(statusCode int, err error) ErrorType {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.Is(err, ErrEmptyResponse):
		return ErrorTypeEmptyResponse
	case errors.Is(err, ErrUnknownProvider):
		return ErrorTypeUnknown
	}

	switch {
	case statusCode == http.StatusBadRequest:
		return ErrorTypeInvalidRequest
	case statusCode == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case statusCode == http.StatusForbidden:
		return ErrorTypePermission
	case statusCode == http.StatusNotFound:
		return ErrorTypeNotFound
	case statusCode == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case statusCode == 529:
		return ErrorTypeOverloaded
	default:
		return ErrorTypeAPI
	}
}

// TypeOf 获取错误类型，非 ProviderError 视为 ErrorTypeAPI
func TypeOf(err error) ErrorType {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Type
	}
	return ErrorTypeAPI
}
