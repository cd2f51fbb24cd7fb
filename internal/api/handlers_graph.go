package api

import (
	"net/http"

	"github.com/nucleus/filingcore/internal/graph"
)

func (s *Server) handleGraphSuppliers(w http.ResponseWriter, r *http.Request) {
	id, err := pathSuffix(r, "/graph/suppliers/")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	expander := graph.NewExpander(s.Graph)
	result, err := expander.Expand(r.Context(), id, graph.RelSupplierOf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
