package client

import (
	"fmt"

	"foodrelay/internal/apierr"
)

type Category string

const (
	CategoryUnreachable Category = "unreachable"
	CategoryAuth        Category = "auth"
	CategoryRateLimit   Category = "rate_limit"
	CategoryUpstream    Category = "upstream"
	CategoryBadRequest  Category = "bad_request"
	CategoryServer      Category = "server"
)

// Error — ошибка вызова relay, уже разложенная по категориям для показа пользователю.
type Error struct {
	Category Category
	Code     apierr.Code
	Status   int
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Category, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Hint — короткая подсказка для человека по категории ошибки.
func (e *Error) Hint() string {
	switch e.Category {
	case CategoryUnreachable:
		return "Cannot connect to backend server. Make sure it is running."
	case CategoryAuth:
		return "API key error. Check the OPENAI_API_KEY configuration."
	case CategoryRateLimit:
		return "Rate limit exceeded. Please wait a moment and try again."
	case CategoryUpstream:
		return "The AI service is unavailable right now. Please try again later."
	case CategoryBadRequest:
		return "The request was rejected: " + e.Message
	default:
		return "Sorry, I encountered an error: " + e.Message
	}
}

func categoryFor(code apierr.Code) Category {
	switch code {
	case apierr.CodeUpstreamAuth:
		return CategoryAuth
	case apierr.CodeUpstreamRateLimited:
		return CategoryRateLimit
	case apierr.CodeUpstreamError, apierr.CodeUpstreamUnavailable:
		return CategoryUpstream
	case apierr.CodeBadRequest, apierr.CodeNotFound:
		return CategoryBadRequest
	default:
		return CategoryServer
	}
}
