package httpserver

import (
	"encoding/json"
	"net/http"

	"foodrelay/internal/apierr"
)

// WriteJSONError возвращает ошибку в едином формате.
func WriteJSONError(w http.ResponseWriter, status int, code apierr.Code, message string) {
	writeError(w, status, apierr.Body{Code: code, Message: message})
}

func writeError(w http.ResponseWriter, status int, body apierr.Body) {
	body.Status = status
	writeJSON(w, status, apierr.Envelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
