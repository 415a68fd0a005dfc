package response

import "net/http"

const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401
	CodeForbidden       = 403
	CodeNotFound        = 404
	CodeConflict        = 409
	CodePayloadTooLarge = 413
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeBadGateway      = 502
	CodeUnavailable     = 503
)

// HTTPStatus 业务码与 HTTP 状态码一致时直接复用，其余按 500 处理
func HTTPStatus(code int) int {
	if code == CodeOK {
		return http.StatusOK
	}
	if code >= 400 && code <= 599 && http.StatusText(code) != "" {
		return code
	}
	return http.StatusInternalServerError
}
