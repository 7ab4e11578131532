package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/costwatch/costwatch-dashboard/cwerr"
)

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err cwerr.CostWatchError) {
	s.log.Warn("API error", "status", status, "code", err.Code, "message", err.Message, "request_id", requestIDFromRequest(r))
	writeJSON(w, status, map[string]string{"code": err.Code, "message": err.Message})
}

// statusOf maps an error code to its HTTP status.
func statusOf(code string) int {
	switch code {
	case cwerr.CodeNotFound:
		return http.StatusNotFound
	case cwerr.CodeBadRequest, cwerr.CodeInvalidThreshold:
		return http.StatusBadRequest
	case cwerr.CodeSourceMissing, cwerr.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeProviderError(w http.ResponseWriter, r *http.Request, err error) {
	if ce, ok := cwerr.As(err); ok {
		s.writeError(w, r, statusOf(ce.Code), ce)
		return
	}
	// Untyped errors come straight from a provider; surface the message as is.
	s.log.Error("provider error", "error", err, "request_id", requestIDFromRequest(r))
	s.writeError(w, r, http.StatusBadGateway, cwerr.New(cwerr.CodeUpstream, err.Error(), nil))
}

// recoveryLogger adapts slog to handlers.RecoveryHandlerLogger.
type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...any) {
	args := make([]any, 0, len(v))
	for _, a := range v {
		args = append(args, slog.Any("panic", a))
	}
	l.log.Error("recovered from panic", args...)
}
