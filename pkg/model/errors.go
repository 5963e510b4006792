package model

import (
	"errors"
	"fmt"
)

var (
	ErrActionInFlight  = errors.New("action already in flight for user")
	ErrSessionNotReady = errors.New("session not ready")
	ErrNoTarget        = errors.New("no matching page target")
	ErrNoSession       = errors.New("no session context")
)

// LimitScope 限流窗口
type LimitScope string

const (
	ScopeMinute LimitScope = "minute"
	ScopeHour   LimitScope = "hour"
)

// RateLimitError 本地限流触发
type RateLimitError struct {
	Kind  ActionKind
	Scope LimitScope
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit reached: too many %s actions per %s, please wait", e.Kind, e.Scope)
}

// NetworkError 传输失败，或非 2xx 且响应体无法解析
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError 远端返回了结构化的错误响应
type APIError struct {
	Op         string
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Status
	}
	return fmt.Sprintf("%s: api error (status %d): %s", e.Op, e.StatusCode, msg)
}

// Classify 将错误映射为操作结果分类
func Classify(err error) ActionResult {
	if err == nil {
		return ResultOK
	}
	var rl *RateLimitError
	var ne *NetworkError
	var ae *APIError
	switch {
	case errors.As(err, &rl):
		return ResultRateLimited
	case errors.Is(err, ErrActionInFlight):
		return ResultInFlight
	case errors.As(err, &ae):
		return ResultAPIError
	case errors.As(err, &ne):
		return ResultNetworkError
	default:
		return ResultFailed
	}
}
