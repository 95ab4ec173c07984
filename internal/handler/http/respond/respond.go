// Package respond writes JSON responses. Error helpers never expose internal
// error text for 5xx responses.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorBody is the common rejection shape.
type ErrorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// headers are already sent
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", status),
				slog.Any("error", err))
		}
	}
}

// Error writes {success:false, error:message, code:code}.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: message, Code: code})
}

// SafeError logs err (sanitized) and writes a generic message for 5xx
// statuses. For 4xx statuses publicMessage is returned as is; err is only
// logged.
func SafeError(w http.ResponseWriter, status int, code, publicMessage string, err error) {
	if status >= http.StatusInternalServerError {
		if err != nil {
			slog.Default().Error("internal server error",
				slog.String("status", http.StatusText(status)),
				slog.String("code", code),
				slog.String("error", SanitizeError(err)))
		}
		publicMessage = "internal server error"
	}
	Error(w, status, code, publicMessage)
}
