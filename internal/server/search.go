package server

import (
	"net/http"
	"strconv"

	"github.com/kmladek/agentsessions/internal/query"
	"github.com/kmladek/agentsessions/internal/search"
)

// handleSearch serves the compact hits mode: at most limit hits,
// one per session, within the filtered session set.
func (s *Server) handleSearch(
	w http.ResponseWriter, r *http.Request,
) {
	params, err := queryParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	// search scans within the sessions passing the other filters,
	// so a model filter matching nothing yields zero hits
	term := r.URL.Query().Get("q")
	params.SearchTerm = ""

	snap := s.store.Snapshot()
	filtered := query.Filter(snap.Sessions, params)
	writeJSON(w, http.StatusOK, search.Run(filtered, term, limit))
}
