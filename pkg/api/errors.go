package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	dserrors "github.com/matzehuels/depscanner/pkg/errors"
)

// ErrorDetails is the body of every error response.
type ErrorDetails struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	ErrorCode string    `json:"errorCode"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	code := dserrors.GetCode(err)
	msg := dserrors.UserMessage(err)
	if !dserrors.IsClientError(err) {
		status = http.StatusInternalServerError
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if code == "" {
			code, msg = dserrors.ErrCodeInternal, "internal server error"
			if errors.Is(err, context.DeadlineExceeded) {
				code, msg = dserrors.ErrCodeTimeout, "request timed out"
			}
		}
	}
	writeJSON(w, status, ErrorDetails{
		Timestamp: time.Now().UTC(),
		Message:   msg,
		Path:      "uri=" + r.URL.Path,
		ErrorCode: string(code),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
