package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingAPIKey 未配置凭据；在首次请求时报告而不是启动时
// ErrMissingAPIKey is reported by the first request, never at startup.
var ErrMissingAPIKey = errors.New("api key is not configured")

// RequestError 远端不可达、认证失败或流格式错误；Partial 为失败前已累积的文本
// RequestError reports an unreachable endpoint, a rejected credential or a malformed
// stream. Partial holds the text accumulated before the failure.
type RequestError struct {
	Provider string
	Partial  string
	Err      error
}

func (e *RequestError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("chat request failed: %v", e.Err)
	}
	return fmt.Sprintf("%s chat request failed: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// StatusError 非 2xx 的 HTTP 响应 / a non-2xx HTTP response
type StatusError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http status %d: %v", e.StatusCode, e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

func newRequestError(providerName, partial string, err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		out := *reqErr
		if out.Provider == "" {
			out.Provider = providerName
		}
		if partial != "" {
			out.Partial = partial
		}
		return &out
	}
	return &RequestError{Provider: providerName, Partial: partial, Err: err}
}

// retryable 上下文取消、缺少凭据和 4xx（429 除外）不重试
// retryable: context cancellation, missing credentials and 4xx other than 429 are final.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrMissingAPIKey) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		if code == http.StatusTooManyRequests {
			return true
		}
		return code < 400 || code >= 500
	}
	return true
}
