package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/autosql/autosql/internal/dataset"
)

const exportFilename = "result.csv"

func handleExportResult(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(deps, r)
	if !ok {
		writeSessionExpired(w, r)
		return
	}
	last, ok := sess.LastResult()
	if !ok {
		writeError(r.Context(), w, http.StatusNotFound, "NO_RESULT", "no query result to export", false, nil)
		return
	}

	var buf bytes.Buffer
	if err := dataset.WriteCSV(&buf, last.Result.Columns, last.Result.Rows); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to render csv", true, map[string]any{"details": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
