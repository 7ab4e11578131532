package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/costwatch/costwatch-dashboard/cwerr"
	"github.com/costwatch/costwatch-dashboard/highlight"
)

const (
	highlightRange = "range"
	highlightPoint = "point"
)

// highlightRequest selects an alert window (kind "range") or an anomaly (kind
// "point") by its projected identity.
type highlightRequest struct {
	Kind      string `json:"kind"`
	Start     *int64 `json:"start,omitempty"`
	End       *int64 `json:"end,omitempty"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

type viewResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) lookupView(w http.ResponseWriter, r *http.Request) (*View, bool) {
	id := mux.Vars(r)["id"]
	view, ok := s.views.Get(id)
	if !ok {
		s.writeError(w, r, http.StatusNotFound, cwerr.New(cwerr.CodeNotFound, "view not found", nil))
		return nil, false
	}
	return view, true
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	view := s.views.Create()
	s.logAudit(r, "view.created", "view_id", view.ID)
	writeJSON(w, http.StatusCreated, viewResponse{ID: view.ID, CreatedAt: view.CreatedAt, ExpiresAt: s.views.ExpiresAt(view)})
}

func (s *Server) handleGetView(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Page(view.Highlight))
}

func (s *Server) handleDeleteView(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.views.Delete(id) {
		s.writeError(w, r, http.StatusNotFound, cwerr.New(cwerr.CodeNotFound, "view not found", nil))
		return
	}
	s.logAudit(r, "view.deleted", "view_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.builder.Chart(view.Highlight))
}

func (s *Server) handleEnterHighlight(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	var req highlightRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, cwerr.New(cwerr.CodeBadRequest, err.Error(), nil))
		return
	}
	if err := enterHighlight(view.Highlight, req); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Highlight.State())
}

func enterHighlight(c *highlight.Coordinator, req highlightRequest) error {
	switch req.Kind {
	case highlightRange:
		if req.Start == nil || req.End == nil {
			return cwerr.New(cwerr.CodeBadRequest, "range highlight requires start and end", nil)
		}
		c.EnterRange(highlight.Range{Start: *req.Start, End: *req.End})
	case highlightPoint:
		if req.Timestamp == nil {
			return cwerr.New(cwerr.CodeBadRequest, "point highlight requires timestamp", nil)
		}
		c.EnterPoint(highlight.Point{Timestamp: *req.Timestamp})
	default:
		return cwerr.New(cwerr.CodeBadRequest, "kind must be range or point", nil)
	}
	return nil
}

// handleLeaveHighlight leaves the given identity when one is passed in the query
// (start and end, or timestamp) and clears the channel otherwise.
func (s *Server) handleLeaveHighlight(w http.ResponseWriter, r *http.Request) {
	view, ok := s.lookupView(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := highlightRequest{Kind: mux.Vars(r)["kind"]}
	for key, dst := range map[string]**int64{"start": &req.Start, "end": &req.End, "timestamp": &req.Timestamp} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, cwerr.New(cwerr.CodeBadRequest, "invalid "+key, err))
			return
		}
		*dst = &v
	}
	if err := leaveHighlight(view.Highlight, req); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Highlight.State())
}

func leaveHighlight(c *highlight.Coordinator, req highlightRequest) error {
	switch req.Kind {
	case highlightRange:
		switch {
		case req.Start != nil && req.End != nil:
			c.LeaveRange(highlight.Range{Start: *req.Start, End: *req.End})
		case req.Start == nil && req.End == nil:
			c.ClearRange()
		default:
			return cwerr.New(cwerr.CodeBadRequest, "range leave requires both start and end", nil)
		}
	case highlightPoint:
		if req.Timestamp != nil {
			c.LeavePoint(highlight.Point{Timestamp: *req.Timestamp})
		} else {
			c.ClearPoint()
		}
	default:
		return cwerr.New(cwerr.CodeBadRequest, "kind must be range or point", nil)
	}
	return nil
}

var errUnknownAction = cwerr.New(cwerr.CodeBadRequest, "action must be enter or leave", nil)
