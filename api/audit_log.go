package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditLogEntry captures structured details for audit actions.
// Action is a dot-separated string, e.g. "threshold.updated", "view.created".
type AuditLogEntry struct {
	RequestID string    `json:"request_id"`
	ActorType string    `json:"actor_type"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
}

func (s *Server) logAudit(r *http.Request, action string, attrs ...any) {
	entry := AuditLogEntry{
		RequestID: requestIDFromRequest(r),
		ActorType: actorTypeFromRequest(r),
		ActorID:   actorIDFromRequest(r),
		Timestamp: s.clk.Now().UTC(),
		Action:    action,
	}
	args := append([]any{
		"request_id", entry.RequestID,
		"actor_type", entry.ActorType,
		"actor_id", entry.ActorID,
		"timestamp", entry.Timestamp,
		"action", entry.Action,
	}, attrs...)
	s.log.Info("audit_log", args...)
}

func actorTypeFromRequest(r *http.Request) string {
	typ := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Type")))
	switch typ {
	case "automation":
		return "automation"
	default:
		return "user"
	}
}

func actorIDFromRequest(r *http.Request) string {
	for _, header := range []string{"X-User-Id", "X-User-ID", "X-Actor-ID", "X-CostWatch-Actor-ID"} {
		if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
			return id
		}
	}
	return "unknown"
}

type requestIDKey struct{}

// withRequestID resolves the request id once and carries it in the context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestIDFromHeaders(r)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFromHeaders(r *http.Request) string {
	for _, header := range []string{"X-Request-ID", "X-Amzn-Trace-Id", "X-Correlation-ID", "X-Trace-ID"} {
		if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
			return id
		}
	}
	return ""
}

func requestIDFromRequest(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return id
	}
	if id := requestIDFromHeaders(r); id != "" {
		return id
	}
	return "generated-" + uuid.NewString()
}
