package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"foodrelay/internal/apierr"
)

// Recover перехватывает panic и возвращает 500 в общем формате ошибок, не падая процессом.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						slog.Any("error", rec),
						slog.String("path", r.URL.Path),
						slog.String("request_id", r.Header.Get(headerRequestID)),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(apierr.Envelope{Error: apierr.Body{
						Code:    apierr.CodeInternal,
						Message: "internal server error",
						Status:  http.StatusInternalServerError,
					}})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
