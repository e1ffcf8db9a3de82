package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"weft/internal/logging"
	"weft/internal/services"
)

const maxJSONBody = 8 << 20

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor picks the HTTP status for a classified error. Only transient
// classes map to 5xx, which is what the client retries.
func statusFor(kind string) int {
	switch kind {
	case "validation", "permanent":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "lease_lost":
		return http.StatusConflict
	case "configuration":
		return http.StatusBadRequest
	case "timeout":
		return http.StatusGatewayTimeout
	case "external_tool":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.Classification(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(s.logger, "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("kind", kind),
			logging.Error(err),
		)
	} else {
		s.logger.Debug("api request rejected",
			logging.String("path", r.URL.Path),
			logging.String("kind", kind),
			logging.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(format string, args ...any) error {
	return services.Wrap(services.ErrValidation, "api", "request", fmt.Sprintf(format, args...), nil)
}

func decodeBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body required")
		}
		return badRequest("decode body: %v", err)
	}
	return nil
}

func decodeHeader(r *http.Request, name string, out any) error {
	raw := r.Header.Get(name)
	if raw == "" {
		return badRequest("%s header required", name)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return badRequest("decode %s header: %v", name, err)
	}
	return nil
}

func nopLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return logging.NewNop()
	}
	return logger
}
