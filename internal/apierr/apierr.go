// Package apierr описывает единый формат ошибок HTTP API.
// Клиент классифицирует ошибки по Code, а не по тексту сообщения.
package apierr

import "net/http"

type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeNotFound            Code = "not_found"
	CodeUpstreamError       Code = "upstream_error"
	CodeUpstreamAuth        Code = "upstream_auth"
	CodeUpstreamRateLimited Code = "upstream_rate_limited"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeStoreError          Code = "store_error"
	CodeInternal            Code = "internal"
)

type Envelope struct {
	Error Body `json:"error"`
}

type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// Details — тело ответа upstream как есть.
	Details string `json:"details,omitempty"`
}

// UpstreamCode сопоставляет статус upstream с кодом ошибки.
func UpstreamCode(status int) Code {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUpstreamAuth
	case status == http.StatusTooManyRequests:
		return CodeUpstreamRateLimited
	case status >= 500:
		return CodeUpstreamUnavailable
	default:
		return CodeUpstreamError
	}
}
