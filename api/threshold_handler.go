package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/threshold"
)

// alertRuleRequest is the body of PUT /v1/alert-rules. Threshold is either a JSON
// number or the raw text typed into the threshold input.
type alertRuleRequest struct {
	Service   string          `json:"service"`
	Metric    string          `json:"metric"`
	Threshold json.RawMessage `json:"threshold"`
}

func parseThresholdValue(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, cwerr.New(cwerr.CodeInvalidThreshold, "threshold is required", nil)
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, cwerr.New(cwerr.CodeInvalidThreshold, "threshold must be a number", err)
		}
		return threshold.ParseThreshold(text)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, cwerr.New(cwerr.CodeInvalidThreshold, "threshold must be a number", err)
	}
	return v, nil
}

func (s *Server) handlePutAlertRule(w http.ResponseWriter, r *http.Request) {
	var req alertRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, cwerr.New(cwerr.CodeBadRequest, err.Error(), nil))
		return
	}
	value, err := parseThresholdValue(req.Threshold)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}

	rule, err := s.thresholds.Propose(r.Context(), req.Service, req.Metric, value)
	if err != nil {
		s.writeProviderError(w, r, err)
		return
	}

	s.logAudit(r, "threshold.updated", "service", rule.Service, "metric", rule.Metric, "threshold", rule.Threshold)
	writeJSON(w, http.StatusOK, rule)
}
