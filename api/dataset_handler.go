package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/costwatch/costwatch-dashboard/dataset"
)

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"datasets": s.datasets.Infos()})
}

// handleRefreshDataset is the user retry for one section. A failed fetch keeps the
// previous data and is reported with the upstream status.
func (s *Server) handleRefreshDataset(w http.ResponseWriter, r *http.Request) {
	name := dataset.Name(mux.Vars(r)["name"])
	if err := s.datasets.Refresh(r.Context(), name); err != nil {
		s.writeProviderError(w, r, err)
		return
	}
	info, _ := s.datasets.Info(name)
	writeJSON(w, http.StatusOK, info)
}
