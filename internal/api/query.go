package api

import (
	"net/http"
	"strings"
)

type queryRequest struct {
	SQL string `json:"sql"`
}

type queryResponse struct {
	SQL     string         `json:"sql"`
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

// handleQuery runs a caller-supplied statement, typically an edited version
// of a generated one.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}

	var request queryRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}

	result, ok := executeForSession(deps, w, r, sess, request.SQL)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		SQL:     request.SQL,
		Columns: result.Columns,
		Rows:    result.Rows,
		Stats:   resultStats(result, 0),
	})
}
